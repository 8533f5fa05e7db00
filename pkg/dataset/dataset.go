// Package dataset reads the labeled ingredient CSV used for training.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/mchmarny/hscore/pkg/text"
)

const (
	TextColumnDefault   = "Ingredient"
	RatingColumnDefault = "Health Rating"
)

// Record is one cleaned training example.
type Record struct {
	Line   int     `json:"line" yaml:"line"`
	Raw    string  `json:"raw" yaml:"raw"`
	Text   string  `json:"text" yaml:"text"`
	Rating float64 `json:"rating" yaml:"rating"`
}

// Stats counts what happened to the rows of a dataset.
type Stats struct {
	Rows     int `json:"rows" yaml:"rows"`
	Kept     int `json:"kept" yaml:"kept"`
	Dropped  int `json:"dropped" yaml:"dropped"`
	Filtered int `json:"filtered" yaml:"filtered"`
}

// Options selects columns and an optional CEL row filter.
type Options struct {
	TextColumn   string
	RatingColumn string
	Filter       string
}

// LoadFile validates that path is a non-empty text file and reads it.
func LoadFile(path string, opt Options) ([]*Record, *Stats, error) {
	if path == "" {
		return nil, nil, errors.New("dataset path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("dataset %s is a directory", path)
	}
	if info.Size() == 0 {
		return nil, nil, fmt.Errorf("dataset %s is empty", path)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("detecting dataset type: %w", err)
	}
	if !isText(mt) {
		return nil, nil, fmt.Errorf("dataset %s is %s, expected CSV text", path, mt.String())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	return Load(f, opt)
}

func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// Load reads CSV rows, dropping rows with empty text or an empty,
// non-numeric or non-finite rating, then applies the filter.
func Load(r io.Reader, opt Options) ([]*Record, *Stats, error) {
	if opt.TextColumn == "" {
		opt.TextColumn = TextColumnDefault
	}
	if opt.RatingColumn == "" {
		opt.RatingColumn = RatingColumnDefault
	}

	var filter *Filter
	if strings.TrimSpace(opt.Filter) != "" {
		var err error
		if filter, err = NewFilter(opt.Filter); err != nil {
			return nil, nil, err
		}
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	ti, ri := columnIndex(header, opt.TextColumn), columnIndex(header, opt.RatingColumn)
	if ti < 0 || ri < 0 {
		return nil, nil, fmt.Errorf("dataset requires columns %q and %q, got %v",
			opt.TextColumn, opt.RatingColumn, header)
	}

	stats := &Stats{}
	var list []*Record
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, nil, fmt.Errorf("reading line %d: %w", line, err)
		}
		stats.Rows++

		rec, ok := parseRow(row, ti, ri, line)
		if !ok {
			stats.Dropped++
			slog.Debug("dropping malformed row", "line", line)
			continue
		}

		if filter != nil {
			keep, err := filter.Match(rec)
			if err != nil {
				return nil, nil, fmt.Errorf("filter on line %d: %w", line, err)
			}
			if !keep {
				stats.Filtered++
				continue
			}
		}

		list = append(list, rec)
	}

	stats.Kept = len(list)
	slog.Debug("dataset loaded", "rows", stats.Rows, "kept", stats.Kept,
		"dropped", stats.Dropped, "filtered", stats.Filtered)
	return list, stats, nil
}

func parseRow(row []string, ti, ri, line int) (*Record, bool) {
	if ti >= len(row) || ri >= len(row) {
		return nil, false
	}
	norm := text.Normalize(row[ti])
	if norm == "" {
		return nil, false
	}
	rs := strings.TrimSpace(row[ri])
	if rs == "" {
		return nil, false
	}
	rating, err := strconv.ParseFloat(rs, 64)
	if err != nil || math.IsNaN(rating) || math.IsInf(rating, 0) {
		return nil, false
	}
	return &Record{Line: line, Raw: row[ti], Text: norm, Rating: rating}, true
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}
