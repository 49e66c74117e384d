package runstate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"RecipeCollector/internal/domain"
	"RecipeCollector/internal/ports"
)

// FileStore keeps the run state as a JSON document on local disk.
type FileStore struct {
	path string
}

var _ ports.RunStateStore = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns nil without error when no state has been written yet.
func (s *FileStore) Load(ctx context.Context) (*domain.RunState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read run state %s: %w", s.path, err)
	}
	return decode(raw)
}

// Save replaces the state file atomically: a reader sees the old or the new document, never a partial one.
func (s *FileStore) Save(ctx context.Context, state domain.RunState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := encode(state)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp run state: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write run state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync run state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close run state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace run state: %w", err)
	}
	return nil
}
