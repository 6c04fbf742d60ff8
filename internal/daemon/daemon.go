package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"parley/internal/blobstore"
	"parley/internal/config"
	"parley/internal/deadletter"
	"parley/internal/logging"
	"parley/internal/notifications"
	"parley/internal/orchestrator"
	"parley/internal/retention"
	"parley/internal/stream"
	"parley/internal/transcribe"
)

// Daemon owns the long-running services and enforces single-instance
// execution via a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *deadletter.Store
	blobs    *blobstore.Store
	orch     *orchestrator.Orchestrator
	sweeper  *retention.Sweeper
	chat     *stream.Transport
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	api     *apiServer
	running atomic.Bool
	cancel  context.CancelFunc
}

// Status reports daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
}

// New constructs a daemon and its service graph from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := deadletter.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open dead-letter store: %w", err)
	}
	blobs, err := blobstore.Open(filepath.Join(cfg.Paths.DataDir, "blobs"))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	notifier := notifications.NewService(cfg)
	worker := transcribe.NewWorker(cfg.Transcription)
	orch := orchestrator.New(store, blobs, worker, notifier, logger)
	sweeper := retention.New(cfg, store, blobs, notifier, logger)
	chat := stream.NewTransport(cfg.Chat, logger)

	lockPath := filepath.Join(cfg.Paths.LogDir, "parleyd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		blobs:    blobs,
		orch:     orch,
		sweeper:  sweeper,
		chat:     chat,
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and launches the API server and the
// retention schedule.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another parley daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	go d.sweeper.Run(runCtx)

	d.running.Store(true)
	d.logger.Info("parley daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down background services and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("parley daemon stopped")
}

// Close releases all resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddr returns the bound API listener address, or "" before Start.
func (d *Daemon) APIAddr() string {
	return d.api.Addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}
}
