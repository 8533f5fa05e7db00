// Package score turns ingredient text into a rounded rating and display level
// using a loaded artifact pair. A Scorer holds no mutable state and is safe
// for concurrent use.
package score

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/mchmarny/hscore/pkg/artifact"
	"github.com/mchmarny/hscore/pkg/errs"
)

// Result is the response for one scoring request.
type Result struct {
	Rating float64 `json:"rating" yaml:"rating"`
	Level  string  `json:"level" yaml:"level"`
	Color  string  `json:"color" yaml:"color"`
}

// Scorer answers scoring requests from one pair for the process lifetime.
type Scorer struct {
	pair *artifact.Pair
}

// NewScorer wraps pair. A nil pair yields a scorer that reports
// errs.ErrServiceUnavailable for every request.
func NewScorer(pair *artifact.Pair) *Scorer {
	return &Scorer{pair: pair}
}

// Available reports whether a pair is loaded.
func (s *Scorer) Available() bool { return s != nil && s.pair != nil }

// Version returns the loaded pair version, empty when unavailable.
func (s *Scorer) Version() string {
	if !s.Available() {
		return ""
	}
	return s.pair.Version
}

// Score rates one ingredient list.
func (s *Scorer) Score(ctx context.Context, ingredients string) (*Result, error) {
	if strings.TrimSpace(ingredients) == "" {
		return nil, errs.ErrEmptyInput
	}
	if !s.Available() {
		return nil, errs.ErrServiceUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Internal("score", err)
	}

	rating, err := s.predict(ingredients)
	if err != nil {
		if errors.Is(err, errs.ErrDimensionMismatch) {
			slog.Error("encoder and model are out of sync, artifact pair is broken",
				"version", s.pair.Version, "error", err)
			return nil, err
		}
		return nil, errs.Internal("score", err)
	}

	lvl := Classify(rating)
	return &Result{
		Rating: Round(rating),
		Level:  lvl.String(),
		Color:  lvl.Color(),
	}, nil
}

func (s *Scorer) predict(ingredients string) (float64, error) {
	v, err := s.pair.Encoder.TransformFor(ingredients, s.pair.Model.InputWidth())
	if err != nil {
		return 0, err
	}
	rating, err := s.pair.Model.Predict(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(rating) || math.IsInf(rating, 0) {
		return 0, fmt.Errorf("non-finite prediction %v", rating)
	}
	return rating, nil
}
