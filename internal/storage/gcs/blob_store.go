// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Config selects the bucket.
type Config struct {
	Bucket string `mapstructure:"bucket"`
}

// BlobStore writes objects to a bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
	owned  bool
}

// New wraps an existing client. Close leaves the client open.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("bucket name is required")
	}
	return &BlobStore{client: client, bucket: cfg.Bucket}, nil
}

// Dial creates a client from opts and a BlobStore owning it.
func Dial(ctx context.Context, cfg Config, opts ...option.ClientOption) (*BlobStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	s, err := New(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// PutObject uploads r and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(objectPath) == "" {
		return "", errors.New("path is required")
	}
	// Cancelling the writer's context before Close abandons the upload, so a
	// failed copy never commits a partial object.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(wctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, objectPath), nil
}

// Close releases a dialed client.
func (s *BlobStore) Close() error {
	if !s.owned {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}
