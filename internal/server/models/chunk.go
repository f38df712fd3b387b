package models

import "time"

// ChunkRecord is the metadata row of one stored chunk, unique per
// (SessionID, ChunkIndex). The bytes live in the blob store at StoragePath.
// TotalChunks, OriginalFileName and FileType duplicate the session row so a
// session can be rebuilt from its chunks alone.
type ChunkRecord struct {
	SessionID        string
	ChunkIndex       int
	StoragePath      string
	TotalChunks      int
	OriginalFileName string
	FileType         string
	SizeBytes        int64
	// Checksum is the hex encoded SHA-256 of the chunk bytes.
	Checksum     string
	LastActivity time.Time
}

// ChunkSummary aggregates the chunk rows of one session.
type ChunkSummary struct {
	SessionID        string
	TotalChunks      int
	OriginalFileName string
	FileType         string
	Count            int
	Bytes            int64
	LastActivity     time.Time
}
