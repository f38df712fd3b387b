// Package blobstore keeps chunk bytes in object storage or on local disk.
// Paths are opaque to callers; ChunkPath derives them deterministically so
// re-sent chunks overwrite the previous blob.
package blobstore

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Store is the blob storage used for chunk bytes. Get returns an error
// matching common.ErrNotFound for missing paths.
type Store interface {
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	// DeleteMany removes every path it can; the returned error is a
	// *DeleteError listing the paths that could not be removed.
	DeleteMany(ctx context.Context, paths []string) error
}

// ChunkPath returns "<prefix>/<sessionID>/chunk_<index>".
func ChunkPath(prefix, sessionID string, index int) string {
	return path.Join(strings.Trim(prefix, "/"), sessionID, fmt.Sprintf("chunk_%d", index))
}

type DeleteError struct {
	Failed []string
	Err    error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("failed to delete %d blob(s): %v", len(e.Failed), e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}
