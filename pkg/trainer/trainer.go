// Package trainer runs the offline pipeline: load, clean, split, fit the
// encoder and forest on the training side, measure MAE on the holdout side
// and save the pair. The MAE is reported only; no threshold gates the save.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/samber/lo"

	"github.com/mchmarny/hscore/pkg/artifact"
	"github.com/mchmarny/hscore/pkg/dataset"
	"github.com/mchmarny/hscore/pkg/feature"
	"github.com/mchmarny/hscore/pkg/forest"
	"github.com/mchmarny/hscore/pkg/score"
)

// DefaultProbes are scored after every run as a quick sanity check.
var DefaultProbes = []string{
	"Corn flour", "sugar", "oat", "flour", "brown sugar",
	"palm and/or coconut oil", "salt", "sodium citrate",
	"natural and artificial flavor", "malic acid",
}

// Options configures one training run.
type Options struct {
	DataPath  string
	Dataset   dataset.Options
	TestRatio float64
	Seed      int64
	Forest    forest.Params
	Probes    []string
}

// Prediction is a probe scored with the freshly trained pair.
type Prediction struct {
	Text   string  `json:"text" yaml:"text"`
	Rating float64 `json:"rating" yaml:"rating"`
	Level  string  `json:"level" yaml:"level"`
}

// Report summarizes a run.
type Report struct {
	Version        string         `json:"version" yaml:"version"`
	CreatedAt      time.Time      `json:"created_at" yaml:"createdAt"`
	Dataset        string         `json:"dataset" yaml:"dataset"`
	Stats          *dataset.Stats `json:"stats" yaml:"stats"`
	TrainSize      int            `json:"train_size" yaml:"trainSize"`
	TestSize       int            `json:"test_size" yaml:"testSize"`
	VocabularySize int            `json:"vocabulary_size" yaml:"vocabularySize"`
	Trees          int            `json:"trees" yaml:"trees"`
	MAE            float64        `json:"mae" yaml:"mae"`
	Location       string         `json:"location" yaml:"location"`
	Duration       string         `json:"duration" yaml:"duration"`
	Params         forest.Params  `json:"params" yaml:"params"`
	Probes         []*Prediction  `json:"probes,omitempty" yaml:"probes,omitempty"`
}

// Run executes the full pipeline and saves the pair to store.
func Run(ctx context.Context, opt Options, store artifact.Store) (*Report, error) {
	if store == nil {
		return nil, errors.New("artifact store required")
	}
	start := time.Now()

	records, stats, err := dataset.LoadFile(opt.DataPath, opt.Dataset)
	if err != nil {
		return nil, fmt.Errorf("loading dataset: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset %s has no usable rows (%d dropped, %d filtered)",
			opt.DataPath, stats.Dropped, stats.Filtered)
	}
	slog.Info("dataset loaded", "path", opt.DataPath, "rows", stats.Rows, "kept", stats.Kept,
		"dropped", stats.Dropped, "filtered", stats.Filtered)

	train, test, err := dataset.Split(records, opt.TestRatio, opt.Seed)
	if err != nil {
		return nil, fmt.Errorf("splitting dataset: %w", err)
	}

	params := opt.Forest
	params.Seed = opt.Seed
	pair, err := Fit(train, params)
	if err != nil {
		return nil, err
	}

	mae, err := Evaluate(pair, test)
	if err != nil {
		return nil, fmt.Errorf("evaluating: %w", err)
	}
	slog.Info("model evaluated", "mae", fmt.Sprintf("%.2f", mae), "test", len(test))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := store.Save(ctx, pair); err != nil {
		return nil, fmt.Errorf("saving artifact to %s: %w", store.Location(), err)
	}
	slog.Info("artifact saved", "location", store.Location(), "version", pair.Version)

	probes := opt.Probes
	if len(probes) == 0 {
		probes = DefaultProbes
	}
	preds, err := Predict(pair, probes)
	if err != nil {
		return nil, fmt.Errorf("scoring probes: %w", err)
	}

	return &Report{
		Version:        pair.Version,
		CreatedAt:      pair.CreatedAt,
		Dataset:        opt.DataPath,
		Stats:          stats,
		TrainSize:      len(train),
		TestSize:       len(test),
		VocabularySize: pair.Encoder.Dim(),
		Trees:          len(pair.Model.Trees),
		MAE:            mae,
		Location:       store.Location(),
		Duration:       time.Since(start).Round(time.Millisecond).String(),
		Probes:         preds,
		Params:         pair.Model.Params,
	}, nil
}

// Fit trains an encoder on records and a forest on their encodings.
func Fit(records []*dataset.Record, params forest.Params) (*artifact.Pair, error) {
	texts := lo.Map(records, func(r *dataset.Record, _ int) string { return r.Text })
	labels := lo.Map(records, func(r *dataset.Record, _ int) float64 { return r.Rating })

	enc, err := feature.Fit(texts)
	if err != nil {
		return nil, fmt.Errorf("fitting encoder: %w", err)
	}

	X := lo.Map(texts, func(s string, _ int) feature.Vector { return enc.Transform(s) })
	model, err := forest.Fit(X, labels, params)
	if err != nil {
		return nil, fmt.Errorf("fitting model: %w", err)
	}

	pair, err := artifact.NewPair(enc, model)
	if err != nil {
		return nil, fmt.Errorf("pairing encoder and model: %w", err)
	}
	slog.Debug("pair fit", "records", len(records), "vocabulary", enc.Dim(), "trees", len(model.Trees))
	return pair, nil
}

// Evaluate returns the mean absolute error of pair on records; zero records yield 0.
func Evaluate(pair *artifact.Pair, records []*dataset.Record) (float64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	var sum float64
	for _, r := range records {
		p, err := predict(pair, r.Text)
		if err != nil {
			return 0, err
		}
		sum += math.Abs(p - r.Rating)
	}
	return sum / float64(len(records)), nil
}

// Predict scores raw texts with pair, independent of any service.
func Predict(pair *artifact.Pair, texts []string) ([]*Prediction, error) {
	out := make([]*Prediction, 0, len(texts))
	for _, s := range texts {
		p, err := predict(pair, s)
		if err != nil {
			return nil, err
		}
		out = append(out, &Prediction{
			Text:   s,
			Rating: score.Round(p),
			Level:  score.Classify(p).String(),
		})
	}
	return out, nil
}

func predict(pair *artifact.Pair, s string) (float64, error) {
	v, err := pair.Encoder.TransformFor(s, pair.Model.InputWidth())
	if err != nil {
		return 0, err
	}
	return pair.Model.Predict(v)
}
