package blobstore

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressed_RoundTrip(t *testing.T) {
	objs := newFakeObjects()
	inner := &GCSStore{objects: objs}
	store, err := NewCompressed(inner)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	payload := bytes.Repeat([]byte("gym-footage "), 4096)

	require.NoError(t, store.Put(ctx, "uploads/S1/chunk_0", payload))
	assert.Less(t, len(objs.data["uploads/S1/chunk_0"]), len(payload), "blob must be stored compressed")

	got, err := store.Get(ctx, "uploads/S1/chunk_0")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, store.DeleteMany(ctx, []string{"uploads/S1/chunk_0"}))
	assert.Empty(t, objs.data)
}

func TestCompressed_EmptyAndCorrupt(t *testing.T) {
	objs := newFakeObjects()
	store, err := NewCompressed(&GCSStore{objects: objs})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "empty", nil))
	got, err := store.Get(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, got)

	objs.data["corrupt"] = []byte("not zstd at all")
	_, err = store.Get(ctx, "corrupt")
	assert.ErrorContains(t, err, "decompress corrupt")
}
