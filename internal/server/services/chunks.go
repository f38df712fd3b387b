package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/chunkvault/internal/common"
	"github.com/dmitrijs2005/chunkvault/internal/cryptox"
	"github.com/dmitrijs2005/chunkvault/internal/dbx"
	"github.com/dmitrijs2005/chunkvault/internal/logging"
	"github.com/dmitrijs2005/chunkvault/internal/server/blobstore"
	"github.com/dmitrijs2005/chunkvault/internal/server/config"
	"github.com/dmitrijs2005/chunkvault/internal/server/models"
	"github.com/dmitrijs2005/chunkvault/internal/server/repositories/repomanager"
)

type StoreChunkInput struct {
	SessionID   string
	ChunkIndex  int
	TotalChunks int
	Data        []byte

	FileName       string
	FileType       string
	TargetFolderID string
	GymSlug        string
	GymName        string
}

func (in StoreChunkInput) validate() error {
	if err := validateSessionID(in.SessionID); err != nil {
		return err
	}
	if in.TotalChunks <= 0 {
		return fmt.Errorf("%w: total chunks must be positive, got %d", common.ErrInvalidArgument, in.TotalChunks)
	}
	if in.ChunkIndex < 0 || in.ChunkIndex >= in.TotalChunks {
		return fmt.Errorf("%w: chunk index %d out of range [0, %d)", common.ErrInvalidArgument, in.ChunkIndex, in.TotalChunks)
	}
	return nil
}

func (in StoreChunkInput) session(now time.Time) *models.UploadSession {
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

type ChunkService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blobstore.Store
	prefix      string
	maxSize     int64
	// downloads caps concurrent blob reads per reassembly; <= 0 means one
	// reader per chunk.
	downloads int
	logger    logging.Logger
}

func NewChunkService(db *sql.DB, repomanager repomanager.RepositoryManager, blobs blobstore.Store, cfg *config.Config, logger logging.Logger) *ChunkService {
	return &ChunkService{
		db:          db,
		repomanager: repomanager,
		blobs:       blobs,
		prefix:      cfg.ChunkPrefix,
		maxSize:     cfg.MaxChunkSize,
		downloads:   cfg.DownloadParallelism,
		logger:      logger,
	}
}

// StoreChunk persists one chunk and returns the session snapshot after the
// write. The blob is written before any metadata; a failed metadata write
// leaves an orphaned blob for the sweeper, never a row without bytes.
// Re-sending a chunk overwrites it and does not change the received count.
func (s *ChunkService) StoreChunk(ctx context.Context, in StoreChunkInput) (*models.UploadSession, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if s.maxSize > 0 && int64(len(in.Data)) > s.maxSize {
		return nil, fmt.Errorf("%w: chunk of %d bytes exceeds limit of %d", common.ErrInvalidArgument, len(in.Data), s.maxSize)
	}

	existing, err := s.repomanager.Sessions(s.db).Get(ctx, in.SessionID)
	switch {
	case err == nil:
		if existing.TotalChunks != in.TotalChunks {
			return nil, fmt.Errorf("%w: session %s expects %d chunks, got %d",
				common.ErrInvalidArgument, in.SessionID, existing.TotalChunks, in.TotalChunks)
		}
		in.FileName, in.FileType = existing.OriginalFileName, existing.FileType
	case errors.Is(err, common.ErrNotFound):
		if strings.TrimSpace(in.FileName) == "" {
			return nil, fmt.Errorf("%w: file name is required for a new session", common.ErrInvalidArgument)
		}
	default:
		return nil, fmt.Errorf("get session: %w", err)
	}

	path := blobstore.ChunkPath(s.prefix, in.SessionID, in.ChunkIndex)
	if err := s.blobs.Put(ctx, path, in.Data); err != nil {
		return nil, fmt.Errorf("store chunk blob %s: %w", path, err)
	}

	now := timeNow().UTC()
	rec := &models.ChunkRecord{
		SessionID:        in.SessionID,
		ChunkIndex:       in.ChunkIndex,
		StoragePath:      path,
		TotalChunks:      in.TotalChunks,
		OriginalFileName: in.FileName,
		FileType:         in.FileType,
		SizeBytes:        int64(len(in.Data)),
		Checksum:         cryptox.Checksum(in.Data),
		LastActivity:     now,
	}

	var snapshot *models.UploadSession
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		sessions := s.repomanager.Sessions(tx)
		if _, err := sessions.Create(ctx, in.session(now)); err != nil {
			return err
		}
		// Serializes concurrent writers of the same session so each recount
		// sees every committed chunk.
		locked, err := sessions.GetForUpdate(ctx, in.SessionID)
		if err != nil {
			return err
		}
		if locked.TotalChunks != in.TotalChunks {
			return fmt.Errorf("%w: session %s expects %d chunks, got %d",
				common.ErrInvalidArgument, in.SessionID, locked.TotalChunks, in.TotalChunks)
		}
		if err := s.repomanager.Chunks(tx).Upsert(ctx, rec); err != nil {
			return err
		}
		snapshot, err = sessions.RefreshProgress(ctx, in.SessionID, now)
		return err
	})
	if err != nil {
		s.logger.Warn(ctx, "chunk metadata write failed, blob left for sweeper",
			"session_id", in.SessionID, "chunk_index", in.ChunkIndex, "path", path, "error", err)
		return nil, fmt.Errorf("store chunk metadata: %w", err)
	}

	s.logger.Info(ctx, "chunk stored", "session_id", in.SessionID, "chunk_index", in.ChunkIndex,
		"size", rec.SizeBytes, "received", snapshot.ReceivedChunks, "total", snapshot.TotalChunks)
	if snapshot.IsComplete {
		s.logger.Info(ctx, "upload session complete", "session_id", in.SessionID)
	}
	return snapshot, nil
}

// ReceivedBytes is the total size of the stored chunks of a session, zero
// when none are recorded.
func (s *ChunkService) ReceivedBytes(ctx context.Context, sessionID string) (int64, error) {
	summary, err := s.repomanager.Chunks(s.db).Summarize(ctx, sessionID)
	if errors.Is(err, common.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("summarize chunks: %w", err)
	}
	return summary.Bytes, nil
}

// GetSessionChunks returns the chunk records and bytes of sess, both in
// index order. Every chunk is verified against its recorded size and
// checksum; any gap or mismatch is a *common.IntegrityError.
func (s *ChunkService) GetSessionChunks(ctx context.Context, sess *models.UploadSession) ([]*models.ChunkRecord, [][]byte, error) {
	recs, err := s.repomanager.Chunks(s.db).ListBySession(ctx, sess.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list chunks: %w", err)
	}

	ordered := make([]*models.ChunkRecord, sess.TotalChunks)
	for _, r := range recs {
		if r.ChunkIndex < 0 || r.ChunkIndex >= sess.TotalChunks {
			return nil, nil, &common.IntegrityError{SessionID: sess.ID, Index: r.ChunkIndex, Reason: "chunk index out of range"}
		}
		if ordered[r.ChunkIndex] != nil {
			return nil, nil, &common.IntegrityError{SessionID: sess.ID, Index: r.ChunkIndex, Reason: "duplicate chunk record"}
		}
		ordered[r.ChunkIndex] = r
	}
	for i, r := range ordered {
		if r == nil {
			return nil, nil, &common.IntegrityError{SessionID: sess.ID, Index: i, Reason: "chunk record missing"}
		}
	}

	parts := make([][]byte, len(ordered))
	g, gctx := errgroup.WithContext(ctx)
	if s.downloads > 0 {
		g.SetLimit(s.downloads)
	}
	for i, r := range ordered {
		g.Go(func() error {
			data, err := s.blobs.Get(gctx, r.StoragePath)
			if err != nil {
				return &common.IntegrityError{SessionID: sess.ID, Index: i, Reason: "chunk blob unreadable", Err: err}
			}
			if int64(len(data)) != r.SizeBytes {
				return &common.IntegrityError{SessionID: sess.ID, Index: i,
					Reason: fmt.Sprintf("size mismatch: stored %d bytes, recorded %d", len(data), r.SizeBytes)}
			}
			if r.Checksum != "" && cryptox.Checksum(data) != r.Checksum {
				return &common.IntegrityError{SessionID: sess.ID, Index: i, Reason: "checksum mismatch"}
			}
			parts[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, err
	}
	return ordered, parts, nil
}
