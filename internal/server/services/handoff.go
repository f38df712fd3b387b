package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/chunkvault/internal/common"
	"github.com/dmitrijs2005/chunkvault/internal/logging"
	"github.com/dmitrijs2005/chunkvault/internal/server/config"
	"github.com/dmitrijs2005/chunkvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/chunkvault/internal/server/sink"
)

type HandoffInput struct {
	SessionID string
	FileName  string
	MimeType  string
	FolderID  string
	GymSlug   string
	GymName   string
	Data      []byte
}

// HandoffResult describes where the payload ended up. Deduped is set when an
// identical file already existed and nothing was uploaded.
type HandoffResult struct {
	Entry    sink.Entry
	FolderID string
	Deduped  bool
	Method   string
}

const (
	methodDedup     = "dedup"
	methodResumable = "resumable"
	methodSimple    = "simple"
)

type HandoffService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	sink        sink.Sink
	logger      logging.Logger

	rootFolderID      string
	fallbackThreshold int64
	uploadTimeout     time.Duration
	lease             bool
	leaseTTL          time.Duration
}

func NewHandoffService(db *sql.DB, repomanager repomanager.RepositoryManager, s sink.Sink, cfg *config.Config, logger logging.Logger) *HandoffService {
	return &HandoffService{
		db:                db,
		repomanager:       repomanager,
		sink:              s,
		logger:            logger,
		rootFolderID:      cfg.DriveRootFolderID,
		fallbackThreshold: cfg.FallbackThreshold,
		uploadTimeout:     cfg.SinkUploadTimeout,
		lease:             cfg.HandoffLease,
		leaseTTL:          cfg.HandoffLeaseTTL,
	}
}

// Handoff delivers the payload to the sink unless a file with the same name
// and size is already in the target folder. The resumable path is tried
// first; payloads below the fallback threshold get one simple upload retry.
// Failures are *common.SinkError.
func (h *HandoffService) Handoff(ctx context.Context, in HandoffInput) (*HandoffResult, error) {
	folderID, err := h.resolveFolder(ctx, in)
	if err != nil {
		return nil, err
	}
	log := h.logger.With("session_id", in.SessionID, "folder_id", folderID, "file_name", in.FileName)

	if h.lease {
		release, err := h.acquireLease(ctx, folderID, in.FileName)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	size := int64(len(in.Data))
	existing, err := h.sink.ListFolder(ctx, folderID, in.FileName)
	if err != nil {
		return nil, &common.SinkError{Primary: fmt.Errorf("dedup lookup: %w", err)}
	}
	for _, e := range existing {
		if e.Name == in.FileName && e.Size == size {
			log.Info(ctx, "identical file already in sink, upload skipped", "file_id", e.ID, "size", size)
			return &HandoffResult{Entry: e, FolderID: folderID, Deduped: true, Method: methodDedup}, nil
		}
	}

	req := sink.UploadRequest{FolderID: folderID, Name: in.FileName, MimeType: in.MimeType, Data: in.Data}

	entry, perr := h.upload(ctx, h.sink.UploadResumable, req)
	if perr == nil {
		log.Info(ctx, "file handed off", "file_id", entry.ID, "size", size, "method", methodResumable)
		return &HandoffResult{Entry: *entry, FolderID: folderID, Method: methodResumable}, nil
	}
	log.Warn(ctx, "resumable upload failed", "size", size, "error", perr)

	if size >= h.fallbackThreshold {
		return nil, &common.SinkError{Primary: perr}
	}

	entry, ferr := h.upload(ctx, h.sink.UploadSimple, req)
	if ferr != nil {
		return nil, &common.SinkError{Primary: perr, Fallback: ferr}
	}
	log.Info(ctx, "file handed off", "file_id", entry.ID, "size", size, "method", methodSimple)
	return &HandoffResult{Entry: *entry, FolderID: folderID, Method: methodSimple}, nil
}

func (h *HandoffService) upload(ctx context.Context, fn func(context.Context, sink.UploadRequest) (*sink.Entry, error), req sink.UploadRequest) (*sink.Entry, error) {
	if h.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.uploadTimeout)
		defer cancel()
	}
	return fn(ctx, req)
}

// resolveFolder picks the explicit target folder, or the per-gym folder
// under the configured root.
func (h *HandoffService) resolveFolder(ctx context.Context, in HandoffInput) (string, error) {
	if in.FolderID != "" {
		return in.FolderID, nil
	}
	name := in.GymName
	if name == "" {
		name = in.GymSlug
	}
	if name == "" || h.rootFolderID == "" {
		return "", fmt.Errorf("%w: session %s has no target folder", common.ErrInvalidArgument, in.SessionID)
	}
	id, err := h.sink.EnsureFolder(ctx, h.rootFolderID, name)
	if err != nil {
		return "", &common.SinkError{Primary: fmt.Errorf("ensure folder %q: %w", name, err)}
	}
	return id, nil
}

func (h *HandoffService) acquireLease(ctx context.Context, folderID, fileName string) (func(), error) {
	owner := uuid.NewString()
	repo := h.repomanager.Leases(h.db)

	ok, err := repo.Acquire(ctx, folderID, fileName, owner, timeNow().UTC(), h.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire handoff lease: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s in folder %s", common.ErrLeaseHeld, fileName, folderID)
	}

	return func() {
		rctx := context.WithoutCancel(ctx)
		if err := repo.Release(rctx, folderID, fileName, owner); err != nil && !errors.Is(err, common.ErrNotFound) {
			h.logger.Warn(rctx, "release handoff lease", "folder_id", folderID, "file_name", fileName, "error", err)
		}
	}, nil
}
