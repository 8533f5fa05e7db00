package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mchmarny/hscore/pkg/errs"
)

const (
	EncoderFileName = "encoder.json.zst"
	ModelFileName   = "model.json.zst"

	dirMode  = 0700
	fileMode = 0600
)

// FileStore keeps the pair as two files in one directory. Both halves are
// staged as temp files and renamed into place only after both are written.
// Each file carries the pair version, so a half-completed swap fails Load
// instead of passing as a complete pair.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir. The directory is created on Save.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("artifact directory required")
	}
	return &FileStore{dir: filepath.Clean(dir)}, nil
}

func (s *FileStore) Location() string { return s.dir }

func (s *FileStore) Close() error { return nil }

// Files returns the paths of both halves.
func (s *FileStore) Files() []string {
	return []string{
		filepath.Join(s.dir, EncoderFileName),
		filepath.Join(s.dir, ModelFileName),
	}
}

func (s *FileStore) Save(ctx context.Context, p *Pair) error {
	encBlob, modBlob, err := encodeHalves(p)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return fmt.Errorf("creating artifact dir %s: %w", s.dir, err)
	}

	encTmp, err := writeTemp(s.dir, ".encoder-*", encBlob)
	if err != nil {
		return fmt.Errorf("staging encoder: %w", err)
	}
	defer os.Remove(encTmp)

	modTmp, err := writeTemp(s.dir, ".model-*", modBlob)
	if err != nil {
		return fmt.Errorf("staging model: %w", err)
	}
	defer os.Remove(modTmp)

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Rename(encTmp, filepath.Join(s.dir, EncoderFileName)); err != nil {
		return fmt.Errorf("installing encoder: %w", err)
	}
	if err := os.Rename(modTmp, filepath.Join(s.dir, ModelFileName)); err != nil {
		return fmt.Errorf("installing model: %w", err)
	}

	syncDir(s.dir)
	slog.Debug("artifact saved", "dir", s.dir, "version", p.Version)
	return nil
}

func (s *FileStore) Load(_ context.Context) (*Pair, error) {
	encBlob, err := readHalf(filepath.Join(s.dir, EncoderFileName))
	if err != nil {
		return nil, err
	}
	modBlob, err := readHalf(filepath.Join(s.dir, ModelFileName))
	if err != nil {
		return nil, err
	}
	return decodeHalves(encBlob, modBlob)
}

func readHalf(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errs.Wrap(errs.ErrArtifactNotFound, "load", err)
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrArtifactCorrupt, "load", err)
	}
	return b, nil
}

func writeTemp(dir, pattern string, b []byte) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()

	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	if err := os.Chmod(name, fileMode); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// syncDir flushes the renames; not supported on every platform, so best effort.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		slog.Debug("dir sync not supported", "dir", dir, "error", err)
	}
}
