// Package storage publishes finished record store files to blob storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// BlobStore persists objects and returns a URI for them.
type BlobStore interface {
	PutObject(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
}

var contentTypes = map[string]string{
	".jsonl": "application/x-ndjson",
	".gz":    "application/gzip",
	".bz2":   "application/x-bzip2",
	".xz":    "application/x-xz",
	".zst":   "application/zstd",
}

// ContentType guesses a MIME type from a store file name.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ObjectPath joins prefix and the base name of localPath with forward slashes.
func ObjectPath(prefix, localPath string) string {
	base := filepath.Base(localPath)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return base
	}
	return path.Join(prefix, base)
}

// Upload streams the file at localPath to store under objectPath.
func Upload(ctx context.Context, store BlobStore, localPath, objectPath string) (string, error) {
	f, err := os.Open(localPath) // #nosec G304 -- operator-supplied store path.
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	uri, err := store.PutObject(ctx, objectPath, ContentType(localPath), f)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", localPath, err)
	}
	return uri, nil
}
