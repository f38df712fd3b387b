package leases

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/chunkvault/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Acquire(ctx context.Context, folderID, fileName, owner string, now time.Time, ttl time.Duration) (bool, error) {
	query := `
		INSERT INTO handoff_leases (target_folder_id, file_name, owner, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (target_folder_id, file_name)
		DO UPDATE SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
			WHERE handoff_leases.expires_at < $5
	`
	res, err := r.db.ExecContext(ctx, query, folderID, fileName, owner, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Release(ctx context.Context, folderID, fileName, owner string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM handoff_leases WHERE target_folder_id = $1 AND file_name = $2 AND owner = $3`,
		folderID, fileName, owner)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
