// Package checkpoint durably persists Scan Engine recovery state to a
// single JSON file outside the database, independent of the Catalog Store.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/renameio/v2"
	"github.com/spf13/afero"

	"videoanalyzer/internal/model"
)

// Store reads and atomically rewrites the checkpoint file. Fs defaults to
// the OS filesystem; tests substitute an in-memory afero.Fs.
type Store struct {
	fs   afero.Fs
	path string
}

// New returns a Store backed by the real filesystem.
func New(path string) *Store {
	return &Store{fs: afero.NewOsFs(), path: path}
}

// NewWithFs returns a Store backed by a caller-supplied afero.Fs, for
// hermetic tests.
func NewWithFs(fs afero.Fs, path string) *Store {
	return &Store{fs: fs, path: path}
}

// Save atomically rewrites the checkpoint file. On the real filesystem this
// uses renameio's write-temp-fsync-rename sequence per spec §5's "the
// checkpoint file is rewritten atomically" requirement; on an afero.Fs
// backend (tests) atomicity is provided by afero's own semantics.
func (s *Store) Save(cp model.Checkpoint) error {
	cp.SavedAt = time.Now().UTC()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}

	if _, ok := s.fs.(*afero.OsFs); ok || s.fs == nil {
		return writeAtomicReal(s.path, data)
	}
	return afero.WriteFile(s.fs, s.path, data, 0o644)
}

func writeAtomicReal(path string, data []byte) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("checkpoint: create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("checkpoint: write pending file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("checkpoint: atomic replace: %w", err)
	}
	return nil
}

// Load reads the checkpoint file. Returns (nil, nil) if no checkpoint
// exists.
func (s *Store) Load() (*model.Checkpoint, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: read: %w", err)
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal: %w", err)
	}
	return &cp, nil
}

// Discard deletes the checkpoint file. A missing file is not an error.
func (s *Store) Discard() error {
	err := s.fs.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checkpoint: discard: %w", err)
	}
	return nil
}

// IsStale reports whether a checkpoint's SavedAt is older than maxAge.
func IsStale(cp model.Checkpoint, maxAge time.Duration, now time.Time) bool {
	return now.Sub(cp.SavedAt) > maxAge
}
