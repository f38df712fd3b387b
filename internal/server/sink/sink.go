// Package sink delivers reconstructed files to the hierarchical file store
// (Google Drive). Folder creation is idempotent and every call supports
// shared drives.
package sink

import "context"

// Entry is a file or folder in the sink.
type Entry struct {
	ID          string
	Name        string
	Size        int64
	WebViewLink string
}

type UploadRequest struct {
	FolderID string
	Name     string
	MimeType string
	Data     []byte
}

type Sink interface {
	// ListFolder returns the entries of folderID whose name equals name.
	ListFolder(ctx context.Context, folderID, name string) ([]Entry, error)
	// UploadResumable uploads in chunks and is the primary path for large files.
	UploadResumable(ctx context.Context, req UploadRequest) (*Entry, error)
	// UploadSimple sends the whole payload in a single request.
	UploadSimple(ctx context.Context, req UploadRequest) (*Entry, error)
	// EnsureFolder returns the id of the child folder called name, creating it if needed.
	EnsureFolder(ctx context.Context, parentID, name string) (string, error)
}
