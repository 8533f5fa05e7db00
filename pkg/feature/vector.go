package feature

import "sort"

// Vector is a sparse feature vector over a fixed vocabulary.
// Indices are strictly increasing.
type Vector struct {
	Dim     int
	Indices []int
	Values  []float64
}

// At returns the weight at index i, zero when absent.
func (v Vector) At(i int) float64 {
	k := sort.SearchInts(v.Indices, i)
	if k < len(v.Indices) && v.Indices[k] == i {
		return v.Values[k]
	}
	return 0
}

// NNZ is the number of stored non-zero entries.
func (v Vector) NNZ() int { return len(v.Indices) }

// IsZero reports whether every component is zero.
func (v Vector) IsZero() bool {
	for _, x := range v.Values {
		if x != 0 {
			return false
		}
	}
	return true
}

// Dense expands the vector; used by tests and debugging only.
func (v Vector) Dense() []float64 {
	d := make([]float64, v.Dim)
	for k, i := range v.Indices {
		d[i] = v.Values[k]
	}
	return d
}
