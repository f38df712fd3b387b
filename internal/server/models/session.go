// Package models defines the server-side records persisted in Postgres and
// the views returned to callers.
package models

import "time"

// UploadSession tracks expected vs received chunks for one logical file.
// ReceivedChunks is always a recount of chunk rows, never a running counter.
type UploadSession struct {
	ID               string
	OriginalFileName string
	FileType         string
	TotalChunks      int
	ReceivedChunks   int
	IsComplete       bool

	// TargetFolderID is the sink folder; empty means "route by gym".
	TargetFolderID string
	GymSlug        string
	GymName        string

	CreatedAt    time.Time
	LastActivity time.Time
}

// SessionStatus is the progress view handed to upload clients.
type SessionStatus struct {
	SessionID      string    `json:"session_id"`
	FileName       string    `json:"file_name"`
	ReceivedChunks int       `json:"received_chunks"`
	TotalChunks    int       `json:"total_chunks"`
	IsComplete     bool      `json:"is_complete"`
	ReceivedBytes  int64     `json:"received_bytes"`
	LastActivity   time.Time `json:"last_activity"`
}

// Status projects the session into its progress view.
func (s *UploadSession) Status(receivedBytes int64) *SessionStatus {
	return &SessionStatus{
		SessionID:      s.ID,
		FileName:       s.OriginalFileName,
		ReceivedChunks: s.ReceivedChunks,
		TotalChunks:    s.TotalChunks,
		IsComplete:     s.IsComplete,
		ReceivedBytes:  receivedBytes,
		LastActivity:   s.LastActivity,
	}
}
