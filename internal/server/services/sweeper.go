package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/chunkvault/internal/common"
	"github.com/dmitrijs2005/chunkvault/internal/logging"
	"github.com/dmitrijs2005/chunkvault/internal/server/repositories/repomanager"
)

// DefaultRetention applies when Sweep is called without a retention.
const DefaultRetention = 24 * time.Hour

// Sweeper removes sessions that saw no activity within the retention window,
// including orphaned chunks whose session row is gone.
type Sweeper struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	sessions    *SessionService
	logger      logging.Logger
}

func NewSweeper(db *sql.DB, repomanager repomanager.RepositoryManager, sessions *SessionService, logger logging.Logger) *Sweeper {
	return &Sweeper{db: db, repomanager: repomanager, sessions: sessions, logger: logger}
}

// Sweep deletes every session idle since before now-retention and returns
// how many were removed. Blob deletion failures are logged and do not stop
// the metadata cleanup.
func (s *Sweeper) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := timeNow().UTC().Add(-retention)

	candidates, err := s.candidates(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		stale, err := s.stillStale(ctx, id, cutoff)
		if err != nil {
			s.logger.Error(ctx, "sweep: session lookup failed", "session_id", id, "error", err)
			continue
		}
		if !stale {
			continue
		}

		recs, err := s.repomanager.Chunks(s.db).ListBySession(ctx, id)
		if err != nil {
			s.logger.Error(ctx, "sweep: list chunks failed", "session_id", id, "error", err)
			continue
		}
		if err := s.sessions.purge(ctx, id, chunkPaths(recs)); err != nil {
			s.logger.Error(ctx, "sweep: metadata cleanup failed", "session_id", id, "error", err)
			continue
		}
		removed++
	}

	s.logger.Info(ctx, "sweep finished", "removed", removed, "candidates", len(candidates), "cutoff", cutoff)
	return removed, nil
}

// candidates returns the ids of stale chunk groups followed by stale
// sessions without chunks, without duplicates.
func (s *Sweeper) candidates(ctx context.Context, cutoff time.Time) ([]string, error) {
	recs, err := s.repomanager.Chunks(s.db).ListStale(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale chunks: %w", err)
	}
	ids, err := s.repomanager.Sessions(s.db).ListStale(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale sessions: %w", err)
	}

	seen := make(map[string]struct{}, len(recs)+len(ids))
	var out []string
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, r := range recs {
		add(r.SessionID)
	}
	for _, id := range ids {
		add(id)
	}
	return out, nil
}

// stillStale is false for a session whose row was touched at or after
// cutoff, so an old chunk of a live upload never gets it swept.
func (s *Sweeper) stillStale(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	sess, err := s.repomanager.Sessions(s.db).Get(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return sess.LastActivity.Before(cutoff), nil
}
