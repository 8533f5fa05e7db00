// Package artifact persists and loads the encoder/model pair as one
// versioned unit. The two halves are never saved or loaded independently.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mchmarny/hscore/pkg/errs"
	"github.com/mchmarny/hscore/pkg/feature"
	"github.com/mchmarny/hscore/pkg/forest"
)

const (
	schemaVersion = 1

	schemeFile   = "file://"
	schemeRedis  = "redis://"
	schemeRedisS = "rediss://"
)

// Pair is a matched encoder and model. It is read-only once built or loaded.
type Pair struct {
	Version   string
	CreatedAt time.Time
	Encoder   *feature.Encoder
	Model     *forest.Forest
}

// NewPair stamps a fresh version on a matched encoder and model.
func NewPair(enc *feature.Encoder, model *forest.Forest) (*Pair, error) {
	p := &Pair{
		Version:   uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Encoder:   enc,
		Model:     model,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks both halves are present and agree on dimension.
func (p *Pair) Validate() error {
	if p == nil || p.Encoder == nil || p.Model == nil {
		return errors.New("artifact pair requires both encoder and model")
	}
	if p.Encoder.Dim() != p.Model.InputWidth() {
		return errs.Wrapf(errs.ErrDimensionMismatch, "pair",
			"encoder dimension %d, model width %d", p.Encoder.Dim(), p.Model.InputWidth())
	}
	return nil
}

// Store saves and loads the single artifact pair of a deployment.
type Store interface {
	// Save writes both halves as one unit.
	Save(ctx context.Context, p *Pair) error
	// Load reads and cross-checks both halves.
	Load(ctx context.Context) (*Pair, error)
	// Location describes where the pair lives (for logs).
	Location() string
	Close() error
}

// Open returns the store for a location: a redis:// URL or a directory path
// (optionally prefixed with file://).
func Open(location string) (Store, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, errors.New("artifact location required")
	}

	switch {
	case strings.HasPrefix(location, schemeRedis), strings.HasPrefix(location, schemeRedisS):
		return OpenRedisStore(location)
	case strings.HasPrefix(location, schemeFile):
		return NewFileStore(strings.TrimPrefix(location, schemeFile))
	default:
		return NewFileStore(location)
	}
}

// LocalFiles returns the artifact file paths when location is a filesystem
// store, and false for remote backends.
func LocalFiles(location string) ([]string, bool) {
	s, err := Open(location)
	if err != nil {
		return nil, false
	}
	defer s.Close()
	fs, ok := s.(*FileStore)
	if !ok {
		return nil, false
	}
	return fs.Files(), true
}

type encoderEnvelope struct {
	Schema    int              `json:"schema"`
	Version   string           `json:"version"`
	CreatedAt time.Time        `json:"created_at"`
	Dim       int              `json:"dim"`
	Encoder   *feature.Encoder `json:"encoder"`
}

type modelEnvelope struct {
	Schema    int            `json:"schema"`
	Version   string         `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	Kind      string         `json:"kind"`
	Width     int            `json:"width"`
	Model     *forest.Forest `json:"model"`
}

func encodeHalves(p *Pair) (enc, mod []byte, err error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	if p.Version == "" {
		return nil, nil, errors.New("artifact pair has no version")
	}

	enc, err = encodeBlob(&encoderEnvelope{
		Schema:    schemaVersion,
		Version:   p.Version,
		CreatedAt: p.CreatedAt,
		Dim:       p.Encoder.Dim(),
		Encoder:   p.Encoder,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("encoding encoder: %w", err)
	}

	mod, err = encodeBlob(&modelEnvelope{
		Schema:    schemaVersion,
		Version:   p.Version,
		CreatedAt: p.CreatedAt,
		Kind:      p.Model.Name(),
		Width:     p.Model.InputWidth(),
		Model:     p.Model,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("encoding model: %w", err)
	}
	return enc, mod, nil
}

// decodeHalves rebuilds a pair and rejects anything that does not look like
// one consistent training run.
func decodeHalves(encBlob, modBlob []byte) (*Pair, error) {
	var ee encoderEnvelope
	if err := decodeBlob(encBlob, &ee); err != nil {
		return nil, errs.Wrapf(errs.ErrArtifactCorrupt, "load", "decoding encoder: %v", err)
	}
	var me modelEnvelope
	if err := decodeBlob(modBlob, &me); err != nil {
		return nil, errs.Wrapf(errs.ErrArtifactCorrupt, "load", "decoding model: %v", err)
	}

	switch {
	case ee.Schema != schemaVersion || me.Schema != schemaVersion:
		return nil, errs.Wrapf(errs.ErrArtifactCorrupt, "load",
			"unsupported schema encoder=%d model=%d", ee.Schema, me.Schema)
	case ee.Encoder == nil || me.Model == nil:
		return nil, errs.Wrapf(errs.ErrArtifactCorrupt, "load", "empty encoder or model")
	case ee.Version == "" || ee.Version != me.Version:
		return nil, errs.Wrapf(errs.ErrArtifactCorrupt, "load",
			"version mismatch encoder=%q model=%q", ee.Version, me.Version)
	case ee.Dim != ee.Encoder.Dim() || me.Width != me.Model.InputWidth():
		return nil, errs.Wrapf(errs.ErrArtifactCorrupt, "load", "header dimension does not match payload")
	case ee.Encoder.Dim() != me.Model.InputWidth():
		return nil, errs.Wrapf(errs.ErrArtifactCorrupt, "load",
			"encoder dimension %d, model width %d", ee.Encoder.Dim(), me.Model.InputWidth())
	}
	if err := me.Model.Validate(); err != nil {
		return nil, errs.Wrapf(errs.ErrArtifactCorrupt, "load", "invalid model: %v", err)
	}

	return &Pair{
		Version:   ee.Version,
		CreatedAt: ee.CreatedAt,
		Encoder:   ee.Encoder,
		Model:     me.Model,
	}, nil
}
