package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"weft/internal/backend"
	"weft/internal/logging"
	"weft/internal/services"
)

// HeartbeatMonitor renews a job's lease while its activity runs.
type HeartbeatMonitor struct {
	client   backend.Jobs
	logger   *slog.Logger
	interval time.Duration
	lease    time.Duration
}

// NewHeartbeatMonitor creates a monitor. A non-positive interval disables renewal.
func NewHeartbeatMonitor(client backend.Jobs, logger *slog.Logger, interval, lease time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		client:   client,
		logger:   logger,
		interval: interval,
		lease:    lease,
	}
}

// StartLoop renews the lease every interval until ctx ends. When the store
// reports the lease lost, onLost is called once and the loop exits.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, job *backend.Job, onLost func(error)) {
	defer wg.Done()
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := h.client.RenewLease(ctx, job.ID, job.LeaseOwner, h.lease)
			switch {
			case err == nil:
			case errors.Is(err, services.ErrLeaseLost):
				logging.WarnWithContext(logger, "job lease lost; abandoning execution", "lease_lost",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "lease_timeout may be shorter than heartbeat_interval allows"),
					logging.String(logging.FieldImpact, "another worker owns the job"),
				)
				onLost(err)
				return
			case errors.Is(err, context.Canceled):
				return
			default:
				logging.WarnWithContext(logger, "lease renewal failed", "lease_renew_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check backend availability"),
					logging.String(logging.FieldImpact, "lease may expire and the job run twice"),
				)
			}
		}
	}
}
