// Package services implements the chunked-upload pipeline: session
// bookkeeping, chunk storage, reconstruction, sink handoff and the
// retention sweeper. Postgres is the only shared state; every service is
// safe to run on any number of replicas.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/chunkvault/internal/common"
	"github.com/dmitrijs2005/chunkvault/internal/dbx"
	"github.com/dmitrijs2005/chunkvault/internal/logging"
	"github.com/dmitrijs2005/chunkvault/internal/server/blobstore"
	"github.com/dmitrijs2005/chunkvault/internal/server/models"
	"github.com/dmitrijs2005/chunkvault/internal/server/repositories/repomanager"
)

// timeNow is a seam for tests.
var timeNow = time.Now

type CreateSessionInput struct {
	SessionID      string
	FileName       string
	FileType       string
	TotalChunks    int
	TargetFolderID string
	GymSlug        string
	GymName        string
}

// validateSessionID rejects ids that cannot be used verbatim as one blob
// path segment.
func validateSessionID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: session id is required", common.ErrInvalidArgument)
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: session id %q is not a valid path segment", common.ErrInvalidArgument, id)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: session id %q contains control characters", common.ErrInvalidArgument, id)
		}
	}
	return nil
}

func (in CreateSessionInput) validate() error {
	if in.SessionID != "" {
		if err := validateSessionID(in.SessionID); err != nil {
			return err
		}
	}
	if in.TotalChunks <= 0 {
		return fmt.Errorf("%w: total chunks must be positive, got %d", common.ErrInvalidArgument, in.TotalChunks)
	}
	if strings.TrimSpace(in.FileName) == "" {
		return fmt.Errorf("%w: file name is required", common.ErrInvalidArgument)
	}
	return nil
}

func (in CreateSessionInput) session(now time.Time) *models.UploadSession {
	return &models.UploadSession{
		ID:               in.SessionID,
		OriginalFileName: in.FileName,
		FileType:         in.FileType,
		TotalChunks:      in.TotalChunks,
		TargetFolderID:   in.TargetFolderID,
		GymSlug:          in.GymSlug,
		GymName:          in.GymName,
		CreatedAt:        now,
		LastActivity:     now,
	}
}

type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blobstore.Store
	logger      logging.Logger
}

func NewSessionService(db *sql.DB, repomanager repomanager.RepositoryManager, blobs blobstore.Store, logger logging.Logger) *SessionService {
	return &SessionService{db: db, repomanager: repomanager, blobs: blobs, logger: logger}
}

// CreateSession creates the session or returns the existing one untouched.
// An empty SessionID gets a generated UUID.
func (s *SessionService) CreateSession(ctx context.Context, in CreateSessionInput) (*models.UploadSession, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.SessionID == "" {
		in.SessionID = uuid.NewString()
	}

	sess := in.session(timeNow().UTC())
	repo := s.repomanager.Sessions(s.db)

	created, err := repo.Create(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if created {
		s.logger.Info(ctx, "upload session created", "session_id", sess.ID, "file_name", sess.OriginalFileName,
			"total_chunks", sess.TotalChunks, "gym_slug", sess.GymSlug)
		return sess, nil
	}

	existing, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if existing.TotalChunks != in.TotalChunks {
		s.logger.Warn(ctx, "create for existing session with different chunk count ignored",
			"session_id", sess.ID, "total_chunks", existing.TotalChunks, "requested", in.TotalChunks)
	}
	return existing, nil
}

func (s *SessionService) GetSession(ctx context.Context, id string) (*models.UploadSession, error) {
	sess, err := s.repomanager.Sessions(s.db).Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	return sess, nil
}

// GetSessionStatus reports progress. When the session row is missing but
// chunk rows exist, progress is rebuilt from the chunk rows.
func (s *SessionService) GetSessionStatus(ctx context.Context, id string) (*models.SessionStatus, error) {
	sess, err := s.repomanager.Sessions(s.db).Get(ctx, id)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}

	summary, serr := s.repomanager.Chunks(s.db).Summarize(ctx, id)
	if serr != nil && !errors.Is(serr, common.ErrNotFound) {
		return nil, fmt.Errorf("session %s chunks: %w", id, serr)
	}

	switch {
	case sess != nil:
		var received int64
		if summary != nil {
			received = summary.Bytes
		}
		return sess.Status(received), nil
	case summary != nil:
		s.logger.Warn(ctx, "session row missing, status rebuilt from chunks", "session_id", id)
		return &models.SessionStatus{
			SessionID:      id,
			FileName:       summary.OriginalFileName,
			ReceivedChunks: summary.Count,
			TotalChunks:    summary.TotalChunks,
			IsComplete:     summary.Count == summary.TotalChunks,
			ReceivedBytes:  summary.Bytes,
			LastActivity:   summary.LastActivity,
		}, nil
	default:
		return nil, fmt.Errorf("session %s: %w", id, common.ErrNotFound)
	}
}

// DeleteSession aborts an upload: chunk blobs first, then metadata.
func (s *SessionService) DeleteSession(ctx context.Context, id string) error {
	chunks, err := s.repomanager.Chunks(s.db).ListBySession(ctx, id)
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}
	if len(chunks) == 0 {
		if _, err := s.GetSession(ctx, id); err != nil {
			return err
		}
	}

	if err := s.purge(ctx, id, chunkPaths(chunks)); err != nil {
		return err
	}
	s.logger.Info(ctx, "upload session deleted", "session_id", id, "chunks", len(chunks))
	return nil
}

// purge deletes the blobs at paths, then the chunk rows and the session row
// in one transaction. Blob failures are logged and do not stop the purge.
func (s *SessionService) purge(ctx context.Context, id string, paths []string) error {
	if len(paths) > 0 {
		if err := s.blobs.DeleteMany(ctx, paths); err != nil {
			s.logCleanupFailure(ctx, id, paths, err)
		}
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Chunks(tx).DeleteBySession(ctx, id); err != nil {
			return err
		}
		if err := s.repomanager.Sessions(tx).Delete(ctx, id); err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session %s metadata: %w", id, err)
	}
	return nil
}

func (s *SessionService) logCleanupFailure(ctx context.Context, id string, paths []string, err error) {
	failed := paths
	var de *blobstore.DeleteError
	if errors.As(err, &de) {
		failed = de.Failed
	}
	perr := &common.PartialCleanupError{SessionID: id, Paths: failed, Err: err}
	s.logger.Warn(ctx, "blob cleanup incomplete, orphaned blobs left behind",
		"session_id", id, "failed", len(failed), "error", perr)
}

func chunkPaths(chunks []*models.ChunkRecord) []string {
	paths := make([]string, 0, len(chunks))
	for _, c := range chunks {
		paths = append(paths, c.StoragePath)
	}
	return paths
}
