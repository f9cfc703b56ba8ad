// Package memory keeps uploaded objects in memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Object is one stored upload.
type Object struct {
	Data        []byte
	ContentType string
}

// BlobStore stores objects in a map and returns memory:// URIs.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewBlobStore creates an empty BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string]Object)}
}

// PutObject reads r fully and stores a copy under objectPath.
func (s *BlobStore) PutObject(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.objects[objectPath] = Object{Data: data, ContentType: contentType}
	s.mu.Unlock()
	return "memory://" + objectPath, nil
}

// Object returns the stored object at objectPath.
func (s *BlobStore) Object(objectPath string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[objectPath]
	return obj, ok
}
