package models

// FileHandle is the outcome of a successful reconstruction.
type FileHandle struct {
	SessionID   string `json:"session_id"`
	FileID      string `json:"file_id"`
	FileName    string `json:"file_name"`
	FolderID    string `json:"folder_id"`
	Size        int64  `json:"size"`
	Checksum    string `json:"sha256"`
	Deduped     bool   `json:"deduped"`
	WebViewLink string `json:"web_view_link,omitempty"`
}
