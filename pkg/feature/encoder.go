// Package feature implements the TF-IDF encoder that turns ingredient text
// into fixed-width sparse vectors.
package feature

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/mchmarny/hscore/pkg/errs"
	"github.com/mchmarny/hscore/pkg/text"
)

// Encoder is a fitted vocabulary with per-term inverse document frequency.
// It is immutable after Fit or unmarshal and safe for concurrent Transform.
type Encoder struct {
	terms []string
	idf   []float64
	docs  int
	index map[string]int
}

type encoderJSON struct {
	Terms []string  `json:"terms"`
	IDF   []float64 `json:"idf"`
	Docs  int       `json:"docs"`
}

// Fit builds the vocabulary over every distinct token in corpus.
// Terms are ordered by descending document frequency, ties broken lexicographically.
func Fit(corpus []string) (*Encoder, error) {
	if len(corpus) == 0 {
		return nil, errors.New("empty corpus")
	}

	df := make(map[string]int)
	for _, doc := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range text.Tokens(doc) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	if len(df) == 0 {
		return nil, errors.New("corpus contains no tokens")
	}

	terms := make([]string, 0, len(df))
	for t := range df {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if df[terms[i]] != df[terms[j]] {
			return df[terms[i]] > df[terms[j]]
		}
		return terms[i] < terms[j]
	})

	n := float64(len(corpus))
	idf := make([]float64, len(terms))
	for i, t := range terms {
		idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}

	slog.Debug("encoder fit", "documents", len(corpus), "terms", len(terms))
	return newEncoder(terms, idf, len(corpus))
}

func newEncoder(terms []string, idf []float64, docs int) (*Encoder, error) {
	if len(terms) != len(idf) {
		return nil, fmt.Errorf("terms (%d) and idf (%d) length differ", len(terms), len(idf))
	}
	index := make(map[string]int, len(terms))
	for i, t := range terms {
		if _, dup := index[t]; dup {
			return nil, fmt.Errorf("duplicate term %q", t)
		}
		if math.IsNaN(idf[i]) || math.IsInf(idf[i], 0) {
			return nil, fmt.Errorf("non-finite idf for term %q", t)
		}
		index[t] = i
	}
	return &Encoder{terms: terms, idf: idf, docs: docs, index: index}, nil
}

// Dim is the vocabulary size and the width of every produced vector.
func (e *Encoder) Dim() int { return len(e.terms) }

// Docs is the number of documents the encoder was fit on.
func (e *Encoder) Docs() int { return e.docs }

// Term returns the token at index i.
func (e *Encoder) Term(i int) string { return e.terms[i] }

// IDF returns the weight of the term at index i.
func (e *Encoder) IDF(i int) float64 { return e.idf[i] }

// Transform maps raw text to an L2-normalized TF-IDF vector. Tokens outside the
// vocabulary are dropped; text without known tokens yields the zero vector.
func (e *Encoder) Transform(s string) Vector {
	counts := make(map[int]float64)
	for _, tok := range text.Tokens(s) {
		if i, ok := e.index[tok]; ok {
			counts[i]++
		}
	}

	v := Vector{Dim: e.Dim(), Indices: make([]int, 0, len(counts))}
	for i := range counts {
		v.Indices = append(v.Indices, i)
	}
	sort.Ints(v.Indices)

	v.Values = make([]float64, len(v.Indices))
	var norm float64
	for k, i := range v.Indices {
		w := counts[i] * e.idf[i]
		v.Values[k] = w
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for k := range v.Values {
			v.Values[k] /= norm
		}
	}
	return v
}

// TransformFor is Transform guarded by the width a paired model expects.
func (e *Encoder) TransformFor(s string, width int) (Vector, error) {
	if width != e.Dim() {
		return Vector{}, errs.Wrapf(errs.ErrDimensionMismatch, "transform",
			"encoder width %d, model width %d", e.Dim(), width)
	}
	return e.Transform(s), nil
}

func (e *Encoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(encoderJSON{Terms: e.terms, IDF: e.idf, Docs: e.docs})
}

func (e *Encoder) UnmarshalJSON(b []byte) error {
	var raw encoderJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	dec, err := newEncoder(raw.Terms, raw.IDF, raw.Docs)
	if err != nil {
		return err
	}
	*e = *dec
	return nil
}
