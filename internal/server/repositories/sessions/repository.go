package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/chunkvault/internal/server/models"
)

type Repository interface {
	// Create inserts the session unless it already exists; created reports
	// whether a new row was written. Existing rows are never modified.
	Create(ctx context.Context, s *models.UploadSession) (created bool, err error)
	Get(ctx context.Context, id string) (*models.UploadSession, error)
	// GetForUpdate is Get with a row lock held until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.UploadSession, error)
	// RefreshProgress recounts the session's chunk rows and bumps last_activity.
	RefreshProgress(ctx context.Context, id string, at time.Time) (*models.UploadSession, error)
	Delete(ctx context.Context, id string) error
	ListStale(ctx context.Context, cutoff time.Time) ([]string, error)
}
