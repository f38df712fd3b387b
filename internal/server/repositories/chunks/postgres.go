// Package chunks stores chunk metadata rows in PostgreSQL.
package chunks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/chunkvault/internal/common"
	"github.com/dmitrijs2005/chunkvault/internal/dbx"
	"github.com/dmitrijs2005/chunkvault/internal/server/models"
)

const chunkColumns = `session_id, chunk_index, storage_path, total_chunks, original_file_name, file_type,
	size_bytes, checksum, last_activity`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, rec *models.ChunkRecord) error {
	query := `
		INSERT INTO upload_chunks (session_id, chunk_index, storage_path, total_chunks, original_file_name,
			file_type, size_bytes, checksum, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, chunk_index)
		DO UPDATE SET
			storage_path = EXCLUDED.storage_path,
			total_chunks = EXCLUDED.total_chunks,
			original_file_name = EXCLUDED.original_file_name,
			file_type = EXCLUDED.file_type,
			size_bytes = EXCLUDED.size_bytes,
			checksum = EXCLUDED.checksum,
			last_activity = EXCLUDED.last_activity
	`
	res, err := r.db.ExecContext(ctx, query, rec.SessionID, rec.ChunkIndex, rec.StoragePath, rec.TotalChunks,
		rec.OriginalFileName, rec.FileType, rec.SizeBytes, rec.Checksum, rec.LastActivity)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

// ListBySession returns the session's chunk rows ordered by chunk_index.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.ChunkRecord, error) {
	query := `SELECT ` + chunkColumns + ` FROM upload_chunks WHERE session_id = $1 ORDER BY chunk_index`
	return r.list(ctx, query, sessionID)
}

// ListStale returns rows whose last_activity is strictly before cutoff,
// grouped by session and ordered by index.
func (r *PostgresRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*models.ChunkRecord, error) {
	query := `SELECT ` + chunkColumns + ` FROM upload_chunks WHERE last_activity < $1 ORDER BY session_id, chunk_index`
	return r.list(ctx, query, cutoff)
}

// Summarize aggregates the denormalized session fields from chunk rows.
// It returns common.ErrNotFound when the session has no chunks.
func (r *PostgresRepository) Summarize(ctx context.Context, sessionID string) (*models.ChunkSummary, error) {
	query := `
		SELECT COUNT(*), COALESCE(MAX(total_chunks), 0), COALESCE(MAX(original_file_name), ''),
			COALESCE(MAX(file_type), ''), COALESCE(SUM(size_bytes), 0), MAX(last_activity)
		FROM upload_chunks WHERE session_id = $1
	`
	s := &models.ChunkSummary{SessionID: sessionID}
	var last sql.NullTime
	err := r.db.QueryRowContext(ctx, query, sessionID).
		Scan(&s.Count, &s.TotalChunks, &s.OriginalFileName, &s.FileType, &s.Bytes, &last)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if s.Count == 0 {
		return nil, common.ErrNotFound
	}
	s.LastActivity = last.Time
	return s, nil
}

func (r *PostgresRepository) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM upload_chunks WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.ChunkRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select chunks: %w", err)
	}
	defer rows.Close()

	var result []*models.ChunkRecord
	for rows.Next() {
		var c models.ChunkRecord
		if err := rows.Scan(&c.SessionID, &c.ChunkIndex, &c.StoragePath, &c.TotalChunks, &c.OriginalFileName,
			&c.FileType, &c.SizeBytes, &c.Checksum, &c.LastActivity); err != nil {
			return nil, err
		}
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
