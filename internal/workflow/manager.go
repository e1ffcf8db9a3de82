package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"weft/internal/activity"
	"weft/internal/backend"
	"weft/internal/config"
	"weft/internal/logging"
	"weft/internal/metrics"
	"weft/internal/services"
	"weft/internal/transition"
)

// Pool is one queue and the number of workers serving it.
type Pool struct {
	Queue       string
	Concurrency int
}

// Manager owns the worker pools.
type Manager struct {
	cfg         *config.Config
	client      backend.Client
	registry    *activity.Registry
	transitions *transition.Manager
	logger      *slog.Logger
	metrics     *metrics.Collector

	pools      []Pool
	instanceID string

	drainTimeout      time.Duration
	heartbeatInterval time.Duration
	leaseDuration     time.Duration

	mu          sync.RWMutex
	running     bool
	draining    bool
	claimCancel context.CancelFunc
	jobCancel   context.CancelFunc
	jobCtx      context.Context
	done        chan struct{}
	inFlight    int
	lastErr     error
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logging.NewComponentLogger(logger, "workflow")
		}
	}
}

// WithMetrics records job outcomes on collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(m *Manager) {
		m.metrics = collector
	}
}

// WithDrainTimeout overrides workflow.drain_timeout.
func WithDrainTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.drainTimeout = d
		}
	}
}

// WithHeartbeatInterval overrides workflow.heartbeat_interval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.heartbeatInterval = d
	}
}

// New validates the queue specification and builds one pool per entry. A
// malformed specification is a configuration error and no workers exist.
func New(cfg *config.Config, client backend.Client, registry *activity.Registry, transitions *transition.Manager, opts ...Option) (*Manager, error) {
	specs, err := cfg.QueueSpecs()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "queues", "invalid queue specification", err)
	}
	if registry == nil {
		registry = activity.NewRegistry()
	}
	if transitions == nil {
		transitions = transition.New(client, cfg)
	}
	m := &Manager{
		cfg:               cfg,
		client:            client,
		registry:          registry,
		transitions:       transitions,
		logger:            logging.NewNop(),
		instanceID:        uuid.NewString(),
		drainTimeout:      cfg.Workflow.DrainDuration(),
		heartbeatInterval: cfg.Workflow.HeartbeatDuration(),
		leaseDuration:     cfg.Workflow.LeaseDuration(),
	}
	for _, spec := range specs {
		m.pools = append(m.pools, Pool{Queue: spec.Name, Concurrency: spec.Concurrency})
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, pool := range m.pools {
		m.metrics.SetPoolSize(pool.Queue, pool.Concurrency)
	}
	return m, nil
}

// Pools returns the configured pools in specification order.
func (m *Manager) Pools() []Pool {
	return append([]Pool(nil), m.pools...)
}

func (m *Manager) workerOwner(queue string, slot int) string {
	return fmt.Sprintf("%s/%s/%d", m.instanceID, queue, slot)
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) trackInFlight(delta int) {
	m.mu.Lock()
	m.inFlight += delta
	m.mu.Unlock()
}
