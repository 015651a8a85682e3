package msgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore keeps one file per key under a base directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir if needed and returns a store rooted there.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("msgstore: local path is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("msgstore: create %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

// Put replaces the file for key. Readers see either the old or the new
// content, never a partial write.
func (s *LocalStore) Put(_ context.Context, key string, body []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	f, err := os.CreateTemp(s.dir, "."+key+".*.partial")
	if err != nil {
		return fmt.Errorf("msgstore: create temp file: %w", err)
	}
	partial := f.Name()

	_, err = f.Write(body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(partial, filepath.Join(s.dir, key))
	}
	if err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("msgstore: put %s: %w", key, err)
	}
	return nil
}

// Get returns the stored body or ErrNotFound.
func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	body, err := os.ReadFile(filepath.Join(s.dir, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgstore: get %s: %w", key, err)
	}
	return body, nil
}

// Delete removes key. Missing keys are not an error.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("msgstore: delete %s: %w", key, err)
	}
	return nil
}
