// Package history records training runs in sqlite (default) or postgres.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DataFileName = "history.db"

	dirMode     = 0700
	timeFormat  = time.RFC3339Nano
	listDefault = 20

	insertRunSQL = `INSERT INTO training_run (
		version, created_at, dataset, rows_total, rows_kept, rows_dropped, rows_filtered,
		train_size, test_size, vocabulary_size, trees, mae, location, duration
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectRunsSQL = `SELECT id, version, created_at, dataset, rows_total, rows_kept, rows_dropped,
		rows_filtered, train_size, test_size, vocabulary_size, trees, mae, location, duration
		FROM training_run
		ORDER BY id DESC
		LIMIT ?`
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")

	// ErrNoRuns is returned by Latest when nothing was recorded yet.
	ErrNoRuns = errors.New("no training runs recorded")
)

type dialect string

const (
	dialectSQLite   dialect = "sqlite"
	dialectPostgres dialect = "postgres"
)

// Run is one recorded training run.
type Run struct {
	ID             int64     `json:"id" yaml:"id"`
	Version        string    `json:"version" yaml:"version"`
	CreatedAt      time.Time `json:"created_at" yaml:"createdAt"`
	Dataset        string    `json:"dataset" yaml:"dataset"`
	Rows           int       `json:"rows" yaml:"rows"`
	Kept           int       `json:"kept" yaml:"kept"`
	Dropped        int       `json:"dropped" yaml:"dropped"`
	Filtered       int       `json:"filtered" yaml:"filtered"`
	TrainSize      int       `json:"train_size" yaml:"trainSize"`
	TestSize       int       `json:"test_size" yaml:"testSize"`
	VocabularySize int       `json:"vocabulary_size" yaml:"vocabularySize"`
	Trees          int       `json:"trees" yaml:"trees"`
	MAE            float64   `json:"mae" yaml:"mae"`
	Location       string    `json:"location" yaml:"location"`
	Duration       string    `json:"duration" yaml:"duration"`
}

// DB is the run ledger.
type DB struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to dsn and creates the schema if needed. A postgres:// or
// postgresql:// DSN selects postgres; anything else is a sqlite file path.
func Open(ctx context.Context, dsn string) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("history dsn not specified")
	}

	d := dialectSQLite
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		d = dialectPostgres
	} else if dir := filepath.Dir(dsn); dir != "" {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return nil, fmt.Errorf("creating history dir %s: %w", dir, err)
		}
	}

	conn, err := sql.Open(string(d), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s history: %w", d, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to %s history: %w", d, err)
	}

	h := &DB{db: conn, dialect: d}
	if err := h.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return h, nil
}

func (h *DB) migrate(ctx context.Context) error {
	b, err := f.ReadFile(fmt.Sprintf("sql/%s.sql", h.dialect))
	if err != nil {
		return fmt.Errorf("reading %s schema: %w", h.dialect, err)
	}
	if _, err := h.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("creating %s schema: %w", h.dialect, err)
	}
	slog.Debug("history schema ready", "dialect", h.dialect)
	return nil
}

// Close releases the connection.
func (h *DB) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

// Record inserts a run.
func (h *DB) Record(ctx context.Context, r *Run) error {
	if h == nil || h.db == nil {
		return errDBNotInitialized
	}
	if r == nil || r.Version == "" {
		return errors.New("run with version required")
	}

	_, err := h.db.ExecContext(ctx, h.rebind(insertRunSQL),
		r.Version, r.CreatedAt.UTC().Format(timeFormat), r.Dataset,
		r.Rows, r.Kept, r.Dropped, r.Filtered,
		r.TrainSize, r.TestSize, r.VocabularySize, r.Trees,
		r.MAE, r.Location, r.Duration,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", r.Version, err)
	}
	return nil
}

// List returns up to limit runs, newest first.
func (h *DB) List(ctx context.Context, limit int) ([]*Run, error) {
	if h == nil || h.db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = listDefault
	}

	rows, err := h.db.QueryContext(ctx, h.rebind(selectRunsSQL), limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	list := make([]*Run, 0)
	for rows.Next() {
		r := &Run{}
		var created string
		if err := rows.Scan(&r.ID, &r.Version, &created, &r.Dataset, &r.Rows, &r.Kept,
			&r.Dropped, &r.Filtered, &r.TrainSize, &r.TestSize, &r.VocabularySize,
			&r.Trees, &r.MAE, &r.Location, &r.Duration); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if r.CreatedAt, err = time.Parse(timeFormat, created); err != nil {
			return nil, fmt.Errorf("parsing run time %q: %w", created, err)
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return list, nil
}

// Latest returns the most recent run or ErrNoRuns.
func (h *DB) Latest(ctx context.Context) (*Run, error) {
	list, err := h.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNoRuns
	}
	return list[0], nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (h *DB) rebind(q string) string {
	if h.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
