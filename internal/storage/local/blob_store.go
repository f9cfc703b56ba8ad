// Package local implements a filesystem blob store.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config configures the local store.
type Config struct {
	// BaseDir is the directory objects are written under.
	BaseDir string `mapstructure:"base_dir"`
}

// BlobStore writes objects below a base directory.
type BlobStore struct {
	baseDir string
}

// New creates the base directory if needed and checks it is a directory.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("stat base directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base directory %s is not a directory", cfg.BaseDir)
	}
	return &BlobStore{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// PutObject streams r into a temporary file and renames it into place, so a
// failed upload never leaves a partial object behind. Returns a file:// URI.
func (s *BlobStore) PutObject(ctx context.Context, objectPath, _ string, r io.Reader) (string, error) {
	if strings.TrimSpace(objectPath) == "" {
		return "", errors.New("path is required")
	}
	full := filepath.Join(s.baseDir, filepath.FromSlash(objectPath))
	if !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes base directory", objectPath)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	if _, err := io.Copy(tmp, r); err != nil {
		cleanup()
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := ctx.Err(); err != nil {
		cleanup()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("rename object: %w", err)
	}
	return "file://" + full, nil
}
