package services

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/chunkvault/internal/common"
	"github.com/dmitrijs2005/chunkvault/internal/cryptox"
	"github.com/dmitrijs2005/chunkvault/internal/logging"
	"github.com/dmitrijs2005/chunkvault/internal/server/models"
)

// Notifier is told about every file that reached the sink.
type Notifier interface {
	FileDelivered(ctx context.Context, h *models.FileHandle) error
}

type Reconstructor struct {
	sessions *SessionService
	chunks   *ChunkService
	handoff  *HandoffService
	guard    *MemoryGuard
	notifier Notifier
	logger   logging.Logger
}

func NewReconstructor(sessions *SessionService, chunks *ChunkService, handoff *HandoffService, guard *MemoryGuard, notifier Notifier, logger logging.Logger) *Reconstructor {
	return &Reconstructor{
		sessions: sessions,
		chunks:   chunks,
		handoff:  handoff,
		guard:    guard,
		notifier: notifier,
		logger:   logger,
	}
}

// Reconstruct joins the chunks of a complete session, hands the file to the
// sink and then deletes the session. The session is kept when reassembly or
// handoff fails so the call can be retried.
func (r *Reconstructor) Reconstruct(ctx context.Context, sessionID string) (*models.FileHandle, error) {
	sess, err := r.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsComplete {
		return nil, &common.IncompleteSessionError{Received: sess.ReceivedChunks, Total: sess.TotalChunks}
	}
	log := r.logger.With("session_id", sess.ID, "file_name", sess.OriginalFileName)

	size, err := r.chunks.ReceivedBytes(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if err := r.guard.Check(ctx, size); err != nil {
		log.Warn(ctx, "reconstruction refused", "size", size, "error", err)
		return nil, err
	}

	recs, parts, err := r.chunks.GetSessionChunks(ctx, sess)
	if err != nil {
		log.Error(ctx, "chunk retrieval failed", "error", err)
		return nil, err
	}

	payload, sum, err := assemble(sess.ID, parts)
	if err != nil {
		log.Error(ctx, "reassembly failed", "error", err)
		return nil, err
	}
	log.Info(ctx, "file reassembled", "size", len(payload), "chunks", len(parts), "sha256", sum)

	res, err := r.handoff.Handoff(ctx, HandoffInput{
		SessionID: sess.ID,
		FileName:  sess.OriginalFileName,
		MimeType:  sess.FileType,
		FolderID:  sess.TargetFolderID,
		GymSlug:   sess.GymSlug,
		GymName:   sess.GymName,
		Data:      payload,
	})
	if err != nil {
		log.Error(ctx, "handoff failed, session kept for retry", "error", err)
		return nil, err
	}

	handle := &models.FileHandle{
		SessionID:   sess.ID,
		FileID:      res.Entry.ID,
		FileName:    sess.OriginalFileName,
		FolderID:    res.FolderID,
		Size:        int64(len(payload)),
		Checksum:    sum,
		Deduped:     res.Deduped,
		WebViewLink: res.Entry.WebViewLink,
	}

	// The file is in the sink now; cleanup failures are only logged.
	if err := r.sessions.purge(ctx, sess.ID, chunkPaths(recs)); err != nil {
		log.Error(ctx, "session cleanup after handoff failed", "error", err)
	}

	if r.notifier != nil {
		if err := r.notifier.FileDelivered(ctx, handle); err != nil {
			log.Warn(ctx, "delivery notification failed", "error", err)
		}
	}

	log.Info(ctx, "reconstruction finished", "file_id", handle.FileID, "deduped", handle.Deduped)
	return handle, nil
}

// assemble concatenates parts in order into one buffer and returns it with
// its hex SHA-256.
func assemble(sessionID string, parts [][]byte) ([]byte, string, error) {
	var want int64
	for _, p := range parts {
		want += int64(len(p))
	}

	buf := bytes.NewBuffer(make([]byte, 0, want))
	digest := cryptox.NewDigest()
	w := io.MultiWriter(buf, digest)
	for _, p := range parts {
		if _, err := w.Write(p); err != nil {
			return nil, "", fmt.Errorf("assemble: %w", err)
		}
	}

	if int64(buf.Len()) != want {
		return nil, "", &common.IntegrityError{SessionID: sessionID, Index: -1,
			Reason: fmt.Sprintf("reassembled %d bytes, chunks hold %d", buf.Len(), want)}
	}
	return buf.Bytes(), digest.Sum(), nil
}
