package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_PreservesSentinel(t *testing.T) {
	err := Wrap(ErrArtifactNotFound, "load", errors.New("no such file"))
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	assert.NotErrorIs(t, err, ErrArtifactCorrupt)
	assert.Equal(t, KindArtifact, KindOf(err))
	assert.Contains(t, err.Error(), "load: artifact not found: no such file")
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"empty input", ErrEmptyInput, KindInput},
		{"unavailable", ErrServiceUnavailable, KindUnavailable},
		{"dimension wrapped", fmt.Errorf("predict: %w", ErrDimensionMismatch), KindDimension},
		{"internal", Internal("transform", errors.New("boom")), KindInternal},
		{"plain", errors.New("plain"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestInternal_Unwrap(t *testing.T) {
	cause := errors.New("cause")
	err := Internal("op", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal", KindInternal.String())
}
