// Package scheduler runs a job on a cron schedule, one run at a time.
package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/dmitrijs2005/chunkvault/internal/logging"
)

type Scheduler struct {
	cron   *cron.Cron
	logger logging.Logger
	name   string
	job    func(ctx context.Context) error

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
}

// New parses schedule (standard 5-field expression or a descriptor such as
// "@every 1h") and binds job to it. Nothing runs until Start.
func New(name, schedule string, logger logging.Logger, job func(ctx context.Context) error) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		logger: logger.With("job", name),
		name:   name,
		job:    job,
		ctx:    ctx,
		cancel: cancel,
	}

	c := cron.New(cron.WithLogger(cronLogger{log: s.logger}))
	if _, err := c.AddFunc(schedule, s.execute); err != nil {
		cancel()
		return nil, err
	}
	s.cron = c
	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info(s.ctx, "scheduler started")
	s.cron.Start()
}

// Stop prevents further runs and waits for a running job until ctx is
// done, after which the job's context is canceled.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	defer s.cancel()

	select {
	case <-stopCtx.Done():
		s.logger.Info(ctx, "scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn(ctx, "scheduler stop timed out, canceling running job")
	}
}

func (s *Scheduler) execute() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn(s.ctx, "previous run still in progress, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if err := s.job(s.ctx); err != nil {
		s.logger.Error(s.ctx, "scheduled run failed", "error", err)
	}
}

// cronLogger routes cron's own logging into logging.Logger.
type cronLogger struct {
	log logging.Logger
}

// Info is dropped: cron reports every wakeup at info level.
func (l cronLogger) Info(msg string, keysAndValues ...any) {}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(context.Background(), "cron: "+msg, append(keysAndValues, "error", err)...)
}
