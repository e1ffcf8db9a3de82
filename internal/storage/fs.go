package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"weft/internal/fileutil"
	"weft/internal/services"
)

// FS stores blobs as files below a root directory.
type FS struct {
	root string
}

// NewFS creates the root directory when missing.
func NewFS(root string) (*FS, error) {
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "paths.content_dir is empty", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create content dir: %w", err)
	}
	return &FS{root: root}, nil
}

func (s *FS) Kind() string { return "fs" }

func (s *FS) resolve(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

func (s *FS) Put(_ context.Context, key string, body io.Reader, _ string) (int64, error) {
	target, err := s.resolve(key)
	if err != nil {
		return 0, err
	}
	written, _, err := fileutil.WriteFileAtomic(target, body, 0o644)
	if err != nil {
		return 0, fmt.Errorf("store blob %s: %w", key, err)
	}
	return written, nil
}

func (s *FS) Open(_ context.Context, key string) (io.ReadCloser, error) {
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("blob %s: %w", key, services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", key, err)
	}
	return file, nil
}

func (s *FS) Delete(_ context.Context, key string) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}
