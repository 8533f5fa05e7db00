package forest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mchmarny/hscore/pkg/errs"
	"github.com/mchmarny/hscore/pkg/feature"
)

func vec(dim int, kv map[int]float64) feature.Vector {
	v := feature.Vector{Dim: dim}
	for i := 0; i < dim; i++ {
		if x, ok := kv[i]; ok {
			v.Indices = append(v.Indices, i)
			v.Values = append(v.Values, x)
		}
	}
	return v
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 100, p.Trees)
	assert.Equal(t, int64(42), p.Seed)
	assert.InDelta(t, 1.0/3.0, p.MaxFeatures, 1e-12)
	assert.Zero(t, p.MaxDepth)
	assert.Equal(t, p, p.withDefaults())
}

func TestFit_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		X    []feature.Vector
		y    []float64
	}{
		{"empty", nil, nil},
		{"length", []feature.Vector{vec(2, nil)}, []float64{1, 2}},
		{"zero width", []feature.Vector{{Dim: 0}}, []float64{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(tt.X, tt.y, DefaultParams())
			assert.Error(t, err)
		})
	}
}

func TestFit_MixedWidth(t *testing.T) {
	_, err := Fit([]feature.Vector{vec(2, nil), vec(3, nil)}, []float64{1, 2}, DefaultParams())
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestFit_LearnsStep(t *testing.T) {
	var X []feature.Vector
	var y []float64
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			X = append(X, vec(3, map[int]float64{0: 1}))
			y = append(y, 9)
		} else {
			X = append(X, vec(3, map[int]float64{1: 1}))
			y = append(y, 1)
		}
	}

	f, err := Fit(X, y, Params{Trees: 20, MaxFeatures: 1, Seed: 7})
	require.NoError(t, err)
	assert.Len(t, f.Trees, 20)
	assert.Equal(t, 3, f.InputWidth())
	assert.Equal(t, "random_forest", f.Name())

	hi, err := f.Predict(vec(3, map[int]float64{0: 1}))
	require.NoError(t, err)
	lo, err := f.Predict(vec(3, map[int]float64{1: 1}))
	require.NoError(t, err)
	assert.InDelta(t, 9, hi, 0.5)
	assert.InDelta(t, 1, lo, 0.5)
}

func TestFit_Reproducible(t *testing.T) {
	X := []feature.Vector{
		vec(4, map[int]float64{0: 0.5, 1: 0.5}),
		vec(4, map[int]float64{1: 1}),
		vec(4, map[int]float64{2: 0.7, 3: 0.3}),
		vec(4, map[int]float64{0: 0.2, 3: 0.8}),
	}
	y := []float64{2, 4, 6, 8}
	probe := vec(4, map[int]float64{0: 0.4, 3: 0.6})

	a, err := Fit(X, y, DefaultParams())
	require.NoError(t, err)
	b, err := Fit(X, y, DefaultParams())
	require.NoError(t, err)

	pa, err := a.Predict(probe)
	require.NoError(t, err)
	pb, err := b.Predict(probe)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestPredict_BoundedByLabels(t *testing.T) {
	X := []feature.Vector{
		vec(3, map[int]float64{0: 0.58, 1: 0.81}),
		vec(3, map[int]float64{0: 0.58, 2: 0.81}),
	}
	f, err := Fit(X, []float64{3, 5}, DefaultParams())
	require.NoError(t, err)

	p, err := f.Predict(vec(3, map[int]float64{0: 1}))
	require.NoError(t, err)
	assert.Greater(t, p, 3.0)
	assert.Less(t, p, 5.0)
}

func TestPredict_ZeroVectorIsDeterministic(t *testing.T) {
	X := []feature.Vector{vec(2, map[int]float64{0: 1}), vec(2, map[int]float64{1: 1})}
	f, err := Fit(X, []float64{1, 2}, DefaultParams())
	require.NoError(t, err)

	a, err := f.Predict(vec(2, nil))
	require.NoError(t, err)
	b, err := f.Predict(vec(2, nil))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPredict_WidthMismatch(t *testing.T) {
	f, err := Fit([]feature.Vector{vec(2, nil)}, []float64{1}, DefaultParams())
	require.NoError(t, err)

	_, err = f.Predict(vec(5, nil))
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestMaxDepth(t *testing.T) {
	var X []feature.Vector
	var y []float64
	for i := 0; i < 16; i++ {
		X = append(X, vec(16, map[int]float64{i: 1}))
		y = append(y, float64(i))
	}

	f, err := Fit(X, y, Params{Trees: 5, MaxDepth: 2, MaxFeatures: 1})
	require.NoError(t, err)
	for _, tr := range f.Trees {
		assert.LessOrEqual(t, tr.Depth(), 2)
	}
}

func TestForest_JSONRoundTrip(t *testing.T) {
	X := []feature.Vector{
		vec(3, map[int]float64{0: 1}),
		vec(3, map[int]float64{1: 1}),
		vec(3, map[int]float64{2: 1}),
	}
	f, err := Fit(X, []float64{1, 5, 9}, Params{Trees: 10})
	require.NoError(t, err)

	b, err := json.Marshal(f)
	require.NoError(t, err)
	var got Forest
	require.NoError(t, json.Unmarshal(b, &got))
	require.NoError(t, got.Validate())

	for _, x := range X {
		want, err := f.Predict(x)
		require.NoError(t, err)
		have, err := got.Predict(x)
		require.NoError(t, err)
		assert.Equal(t, want, have)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		f    *Forest
	}{
		{"zero width", &Forest{Width: 0, Trees: []*Tree{{Nodes: []Node{{Feature: leaf}}}}}},
		{"no trees", &Forest{Width: 2}},
		{"empty tree", &Forest{Width: 2, Trees: []*Tree{{}}}},
		{"nil tree", &Forest{Width: 2, Trees: []*Tree{nil}}},
		{"feature out of range", &Forest{Width: 2, Trees: []*Tree{{Nodes: []Node{
			{Feature: 5, Left: 1, Right: 2}, {Feature: leaf}, {Feature: leaf},
		}}}}},
		{"cycle", &Forest{Width: 2, Trees: []*Tree{{Nodes: []Node{
			{Feature: 0, Left: 0, Right: 1}, {Feature: leaf},
		}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.f.Validate())
		})
	}
}
