// Package forest implements a bagged ensemble of regression trees over
// sparse feature vectors. Training is single-threaded and reproducible for a
// given seed and input order; a fitted Forest is read-only.
package forest

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/mchmarny/hscore/pkg/errs"
	"github.com/mchmarny/hscore/pkg/feature"
)

const (
	TreesDefault           = 100
	MinSamplesSplitDefault = 2
	MinSamplesLeafDefault  = 1
	MaxFeaturesDefault     = 1.0 / 3.0
	SeedDefault            = 42
)

// Params controls ensemble training.
type Params struct {
	Trees           int     `json:"trees" yaml:"trees"`
	MaxDepth        int     `json:"max_depth" yaml:"maxDepth"` // 0 means unlimited
	MinSamplesSplit int     `json:"min_samples_split" yaml:"minSamplesSplit"`
	MinSamplesLeaf  int     `json:"min_samples_leaf" yaml:"minSamplesLeaf"`
	MaxFeatures     float64 `json:"max_features" yaml:"maxFeatures"` // fraction of width tried per split
	Seed            int64   `json:"seed" yaml:"seed"`
}

// DefaultParams returns 100 trees, seed 42 and a third of the features tried per split.
func DefaultParams() Params {
	return Params{
		Trees:           TreesDefault,
		MinSamplesSplit: MinSamplesSplitDefault,
		MinSamplesLeaf:  MinSamplesLeafDefault,
		MaxFeatures:     MaxFeaturesDefault,
		Seed:            SeedDefault,
	}
}

func (p Params) withDefaults() Params {
	if p.Trees <= 0 {
		p.Trees = TreesDefault
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = MinSamplesSplitDefault
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = MinSamplesLeafDefault
	}
	if p.MaxFeatures <= 0 || p.MaxFeatures > 1 {
		p.MaxFeatures = MaxFeaturesDefault
	}
	if p.MaxDepth < 0 {
		p.MaxDepth = 0
	}
	return p
}

// Forest is the fitted ensemble. Width is the input dimension every member was fit on.
type Forest struct {
	Width  int     `json:"width"`
	Params Params  `json:"params"`
	Trees  []*Tree `json:"trees"`
}

// Fit trains the ensemble on X against y.
func Fit(X []feature.Vector, y []float64, p Params) (*Forest, error) {
	if len(X) == 0 {
		return nil, errors.New("no training samples")
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("samples (%d) and labels (%d) differ", len(X), len(y))
	}
	width := X[0].Dim
	if width <= 0 {
		return nil, errors.New("zero width feature vectors")
	}
	for i := range X {
		if X[i].Dim != width {
			return nil, errs.Wrapf(errs.ErrDimensionMismatch, "fit",
				"sample %d has width %d, want %d", i, X[i].Dim, width)
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return nil, fmt.Errorf("label %d is not finite", i)
		}
	}

	p = p.withDefaults()
	rng := rand.New(rand.NewSource(p.Seed))
	f := &Forest{Width: width, Params: p, Trees: make([]*Tree, 0, p.Trees)}

	n := len(X)
	for t := 0; t < p.Trees; t++ {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		b := &builder{X: X, y: y, p: p, rng: rng, width: width}
		b.build(sample, 0)
		f.Trees = append(f.Trees, &Tree{Nodes: b.nodes})
	}

	slog.Debug("forest fit", "trees", len(f.Trees), "samples", n, "width", width)
	return f, nil
}

// Name identifies the model kind in artifacts and logs.
func (f *Forest) Name() string { return "random_forest" }

// InputWidth is the feature dimension the forest expects.
func (f *Forest) InputWidth() int { return f.Width }

// Predict returns the mean of member predictions. The result is not clamped.
func (f *Forest) Predict(v feature.Vector) (float64, error) {
	if v.Dim != f.Width {
		return 0, errs.Wrapf(errs.ErrDimensionMismatch, "predict",
			"vector width %d, model width %d", v.Dim, f.Width)
	}
	if len(f.Trees) == 0 {
		return 0, errors.New("forest has no trees")
	}
	var sum float64
	for _, t := range f.Trees {
		sum += t.predict(v)
	}
	return sum / float64(len(f.Trees)), nil
}

// Validate checks structural integrity of a decoded forest.
func (f *Forest) Validate() error {
	if f.Width <= 0 {
		return fmt.Errorf("invalid width %d", f.Width)
	}
	if len(f.Trees) == 0 {
		return errors.New("no trees")
	}
	for i, t := range f.Trees {
		if t == nil {
			return fmt.Errorf("tree %d: missing", i)
		}
		if err := t.validate(f.Width); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}
