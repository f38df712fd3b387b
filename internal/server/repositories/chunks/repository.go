package chunks

import (
	"context"
	"time"

	"github.com/dmitrijs2005/chunkvault/internal/server/models"
)

type Repository interface {
	// Upsert writes the row for (SessionID, ChunkIndex), replacing a previous send.
	Upsert(ctx context.Context, rec *models.ChunkRecord) error
	ListBySession(ctx context.Context, sessionID string) ([]*models.ChunkRecord, error)
	Summarize(ctx context.Context, sessionID string) (*models.ChunkSummary, error)
	ListStale(ctx context.Context, cutoff time.Time) ([]*models.ChunkRecord, error)
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
}
