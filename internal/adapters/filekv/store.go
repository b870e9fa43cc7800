package filekv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store is a file-backed implementation of kvstore.Store. Each key maps to
// one file under the data directory; writes go through a temp file + rename
// so a crash mid-write never corrupts the previous value.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("filekv: empty data directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filekv: create data directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	path, err := s.pathFor(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("filekv: read %q: %w", key, err)
	}
	return data, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_ = ctx
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("filekv: write %q: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("filekv: commit %q: %w", key, err)
	}
	return nil
}

func (s *Store) pathFor(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key != filepath.Base(key) {
		return "", fmt.Errorf("filekv: invalid key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}
