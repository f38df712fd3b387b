// Package sessions stores upload session rows in PostgreSQL.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/chunkvault/internal/common"
	"github.com/dmitrijs2005/chunkvault/internal/dbx"
	"github.com/dmitrijs2005/chunkvault/internal/server/models"
)

const sessionColumns = `session_id, original_file_name, file_type, total_chunks, received_chunks, is_complete,
	target_folder_id, gym_slug, gym_name, created_at, last_activity`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.UploadSession) (bool, error) {
	query := `
		INSERT INTO upload_sessions (session_id, original_file_name, file_type, total_chunks,
			target_folder_id, gym_slug, gym_name, created_at, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (session_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		s.ID, s.OriginalFileName, s.FileType, s.TotalChunks, s.TargetFolderID, s.GymSlug, s.GymName, s.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.UploadSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM upload_sessions WHERE session_id = $1`
	return scanSession(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.UploadSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM upload_sessions WHERE session_id = $1 FOR UPDATE`
	return scanSession(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) RefreshProgress(ctx context.Context, id string, at time.Time) (*models.UploadSession, error) {
	query := `
		UPDATE upload_sessions AS s
		SET received_chunks = c.cnt,
			is_complete = (c.cnt = s.total_chunks),
			last_activity = $2
		FROM (SELECT COUNT(*)::int AS cnt FROM upload_chunks WHERE session_id = $1) AS c
		WHERE s.session_id = $1
		RETURNING s.session_id, s.original_file_name, s.file_type, s.total_chunks, s.received_chunks, s.is_complete,
			s.target_folder_id, s.gym_slug, s.gym_name, s.created_at, s.last_activity
	`
	return scanSession(r.db.QueryRowContext(ctx, query, id, at))
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM upload_sessions WHERE session_id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.ExpectAffected(res)
}

// ListStale returns ids of sessions whose last_activity is strictly before cutoff.
func (r *PostgresRepository) ListStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id FROM upload_sessions WHERE last_activity < $1 ORDER BY session_id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to select stale sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func scanSession(row *sql.Row) (*models.UploadSession, error) {
	s := &models.UploadSession{}
	err := row.Scan(&s.ID, &s.OriginalFileName, &s.FileType, &s.TotalChunks, &s.ReceivedChunks, &s.IsComplete,
		&s.TargetFolderID, &s.GymSlug, &s.GymName, &s.CreatedAt, &s.LastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}
