// Package server wires configuration, storage, the sink and the services
// into the runnable chunkvault application.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/chunkvault/internal/logging"
	"github.com/dmitrijs2005/chunkvault/internal/server/blobstore"
	"github.com/dmitrijs2005/chunkvault/internal/server/config"
	"github.com/dmitrijs2005/chunkvault/internal/server/httpapi"
	"github.com/dmitrijs2005/chunkvault/internal/server/notify"
	"github.com/dmitrijs2005/chunkvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/chunkvault/internal/server/scheduler"
	"github.com/dmitrijs2005/chunkvault/internal/server/services"
	"github.com/dmitrijs2005/chunkvault/internal/server/sink"
)

// core is the part of the app shared by the server and the one-shot sweeper.
type core struct {
	db       *sql.DB
	rm       repomanager.RepositoryManager
	blobs    blobstore.Store
	closers  []io.Closer
	sessions *services.SessionService
	sweeper  *services.Sweeper
}

func newCore(ctx context.Context, c *config.Config, logger logging.Logger) (*core, error) {
	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	blobs, closers, err := newBlobStore(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	sessions := services.NewSessionService(db, rm, blobs, logger.With("module", "sessions"))
	return &core{
		db:       db,
		rm:       rm,
		blobs:    blobs,
		closers:  closers,
		sessions: sessions,
		sweeper:  services.NewSweeper(db, rm, sessions, logger.With("module", "sweeper")),
	}, nil
}

func (c *core) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i].Close())
	}
	errs = append(errs, c.db.Close())
	return errors.Join(errs...)
}

// newBlobStore builds the configured backend, wrapped with zstd when chunk
// compression is on. Closers are returned in creation order.
func newBlobStore(ctx context.Context, c *config.Config) (blobstore.Store, []io.Closer, error) {
	var (
		store   blobstore.Store
		closers []io.Closer
	)

	switch strings.ToLower(c.BlobBackend) {
	case "", "s3":
		s, err := blobstore.NewS3StoreFromOptions(ctx, blobstore.S3Options{
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
		})
		if err != nil {
			return nil, nil, err
		}
		store = s
	case "gcs":
		s, closer, err := blobstore.NewGCSStore(ctx, c.GCSBucket, c.GCSCredentials)
		if err != nil {
			return nil, nil, err
		}
		store = s
		closers = append(closers, closer)
	case "fs":
		s, err := blobstore.NewFSStore(c.FSRoot)
		if err != nil {
			return nil, nil, err
		}
		store = s
	default:
		return nil, nil, fmt.Errorf("unknown blob backend %q", c.BlobBackend)
	}

	if c.ChunkCompression {
		cs, err := blobstore.NewCompressed(store)
		if err != nil {
			for _, cl := range closers {
				_ = cl.Close()
			}
			return nil, nil, err
		}
		store = cs
		closers = append(closers, cs)
	}
	return store, closers, nil
}

type App struct {
	config  *config.Config
	logger  logging.Logger
	core    *core
	handler *httpapi.Handler
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(logging.NewLogger(c.LogLevel, c.LogFormat, os.Stdout))

	core, err := newCore(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	drive, err := sink.NewDriveSink(ctx, c.DriveCredentialsFile, c.SinkRateLimit)
	if err != nil {
		_ = core.Close()
		return nil, fmt.Errorf("drive sink init error: %w", err)
	}

	chunks := services.NewChunkService(core.db, core.rm, core.blobs, c, logger.With("module", "chunks"))
	handoff := services.NewHandoffService(core.db, core.rm, drive, c, logger.With("module", "handoff"))
	reconstructor := services.NewReconstructor(core.sessions, chunks, handoff,
		services.NewMemoryGuard(c.MemoryHeadroom), notify.NewWebhook(c.WebhookURL), logger.With("module", "reconstructor"))

	h := &httpapi.Handler{
		Sessions:         core.sessions,
		Chunks:           chunks,
		Reconstructor:    reconstructor,
		Sweeper:          core.sweeper,
		DB:               core.db,
		Logger:           logger.With("module", "http"),
		MaxChunkSize:     c.MaxChunkSize,
		DefaultRetention: c.SessionRetention,
	}

	return &App{config: c, logger: logger, core: core, handler: h}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	router := httpapi.NewRouter(app.handler, app.config.AllowedOrigins)
	s := httpapi.NewServer(app.config.EndpointAddrHTTP, router, app.logger, app.config.ShutdownTimeout)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startSweeper(ctx context.Context) (*scheduler.Scheduler, error) {
	if app.config.SweepSchedule == "" {
		app.logger.Info(ctx, "scheduled sweeping disabled")
		return nil, nil
	}

	retention := app.config.SessionRetention
	s, err := scheduler.New("sweep", app.config.SweepSchedule, app.logger, func(ctx context.Context) error {
		_, err := app.core.sweeper.Sweep(ctx, retention)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sweep schedule %q: %w", app.config.SweepSchedule, err)
	}
	s.Start()
	return s, nil
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	sched, err := app.startSweeper(ctx)
	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	defer cancel()
	if sched != nil {
		sched.Stop(stopCtx)
	}

	if err := app.core.Close(); err != nil {
		app.logger.Error(stopCtx, "shutdown", "error", err)
	}
	app.logger.Info(stopCtx, "App stopped")
}

// SweepOnce runs a single retention sweep and returns the number of removed
// sessions.
func SweepOnce(ctx context.Context, c *config.Config, retention time.Duration) (int, error) {
	logger := logging.NewSlogLogger(logging.NewLogger(c.LogLevel, c.LogFormat, os.Stdout))

	core, err := newCore(ctx, c, logger)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := core.Close(); err != nil {
			logger.Warn(ctx, "close", "error", err)
		}
	}()

	if retention <= 0 {
		retention = c.SessionRetention
	}
	return core.sweeper.Sweep(ctx, retention)
}
