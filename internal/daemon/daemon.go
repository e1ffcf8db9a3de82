package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"weft/internal/backend"
	"weft/internal/config"
	"weft/internal/logging"
	"weft/internal/metrics"
	"weft/internal/workflow"
)

// ErrAlreadyRunning reports that another dispatcher holds the lock.
var ErrAlreadyRunning = errors.New("another weft dispatcher is already running")

const shutdownTimeout = 5 * time.Second

// Daemon coordinates the dispatcher and its health server and enforces
// single-instance execution per state directory.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   backend.Client
	workflow *workflow.Manager
	metrics  *metrics.Collector

	lockPath string
	lock     *flock.Flock

	mu          sync.Mutex
	running     bool
	server      *metrics.Server
	metricsAddr string
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	LockFilePath string
	MetricsAddr  string
}

// New constructs a daemon around an already-configured workflow manager.
func New(cfg *config.Config, client backend.Client, wf *workflow.Manager, collector *metrics.Collector, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || client == nil || wf == nil {
		return nil, errors.New("daemon requires config, backend, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		client:   client,
		workflow: wf,
		metrics:  collector,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the lock, starts the health server, and launches the
// dispatcher. Cancelling ctx drains the dispatcher like Stop.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, d.lockPath)
	}

	if listen := strings.TrimSpace(d.cfg.Metrics.Listen); listen != "" {
		server := metrics.NewServer(listen, d.metrics, d.workflow.Healthy, d.logger)
		addr, err := server.Start()
		if err != nil {
			_ = d.lock.Unlock()
			return fmt.Errorf("start metrics server on %s: %w", listen, err)
		}
		d.server = server
		d.metricsAddr = addr
	}

	if err := d.workflow.Start(ctx); err != nil {
		d.shutdownServer()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}

	d.running = true
	d.logger.Info("weft dispatcher started",
		logging.String("lock", d.lockPath),
		logging.String("metrics", d.metricsAddr),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop drains the dispatcher, stops the health server, and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	d.workflow.Stop()
	d.shutdownServer()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running = false
	d.logger.Info("weft dispatcher stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

func (d *Daemon) shutdownServer() {
	if d.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.server.Shutdown(ctx); err != nil {
		d.logger.Warn("metrics server shutdown failed", logging.Error(err))
	}
	d.server = nil
	d.metricsAddr = ""
}

// Close stops the daemon and closes the backend.
func (d *Daemon) Close() error {
	d.Stop()
	return d.client.Close()
}

// Status reports the daemon and dispatcher state.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	status := Status{
		Running:      d.running,
		LockFilePath: d.lockPath,
		MetricsAddr:  d.metricsAddr,
	}
	d.mu.Unlock()
	status.Workflow = d.workflow.Status(ctx)
	return status
}
