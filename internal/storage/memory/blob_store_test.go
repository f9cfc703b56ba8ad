package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "runs/dataset.jsonl.gz", "application/gzip", strings.NewReader("content"))
	require.NoError(t, err)
	assert.Equal(t, "memory://runs/dataset.jsonl.gz", uri)

	obj, ok := store.Object("runs/dataset.jsonl.gz")
	require.True(t, ok)
	assert.Equal(t, "content", string(obj.Data))
	assert.Equal(t, "application/gzip", obj.ContentType)

	_, ok = store.Object("missing")
	assert.False(t, ok)
}

func TestBlobStoreHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBlobStore().PutObject(ctx, "x", "", strings.NewReader("y"))
	require.ErrorIs(t, err, context.Canceled)
}
