package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"weft/internal/logging"
)

// Start launches every pool's workers. Cancelling ctx behaves like Stop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.pools) == 0 {
		m.mu.Unlock()
		return errors.New("workflow queues not configured")
	}

	claimCtx, claimCancel := context.WithCancel(ctx)
	jobCtx, jobCancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	m.claimCancel = claimCancel
	m.jobCancel = jobCancel
	m.jobCtx = jobCtx
	m.done = done
	m.running = true
	m.draining = false
	m.lastErr = nil
	m.mu.Unlock()

	var group errgroup.Group
	for _, pool := range m.pools {
		for slot := range pool.Concurrency {
			group.Go(func() error {
				m.runWorker(claimCtx, jobCtx, pool, slot)
				return nil
			})
		}
		m.logger.Info("queue pool started",
			logging.String(logging.FieldQueue, pool.Queue),
			logging.Int("workers", pool.Concurrency),
		)
	}
	go func() {
		_ = group.Wait()
		close(done)
	}()
	context.AfterFunc(claimCtx, func() {
		if ctx.Err() != nil {
			m.Stop()
		}
	})
	return nil
}

// Stop ends claiming immediately and waits for in-flight jobs up to the drain
// timeout. Jobs still running after that have their contexts cancelled and are
// handed back to the queue.
func (m *Manager) Stop() {
	m.mu.Lock()
	done := m.done
	if !m.running {
		m.mu.Unlock()
		if done != nil {
			<-done
		}
		return
	}
	m.running = false
	m.draining = true
	claimCancel := m.claimCancel
	jobCancel := m.jobCancel
	inFlight := m.inFlight
	m.mu.Unlock()

	claimCancel()
	m.logger.Info("draining workflow",
		logging.Int("in_flight", inFlight),
		logging.Duration("drain_timeout", m.drainTimeout),
	)

	timer := time.NewTimer(m.drainTimeout)
	select {
	case <-done:
		timer.Stop()
	case <-timer.C:
		logging.WarnWithContext(m.logger, "drain timeout elapsed; interrupting jobs", "drain_timeout",
			logging.String(logging.FieldErrorHint, "raise workflow.drain_timeout if activities need longer to finish"),
			logging.String(logging.FieldImpact, "interrupted jobs are re-queued and run again"),
		)
		jobCancel()
		<-done
	}
	jobCancel()

	m.mu.Lock()
	m.draining = false
	m.mu.Unlock()
	m.logger.Info("workflow stopped")
}

// Healthy reports whether the dispatcher is running and not draining.
func (m *Manager) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running && !m.draining
}

func (m *Manager) runWorker(claimCtx, jobCtx context.Context, pool Pool, slot int) {
	owner := m.workerOwner(pool.Queue, slot)
	logger := m.logger.With(
		logging.String(logging.FieldQueue, pool.Queue),
		logging.String(logging.FieldWorker, owner),
	)
	minWait := m.cfg.Workflow.PollInterval()
	if minWait <= 0 {
		minWait = time.Millisecond
	}
	maxWait := max(m.cfg.Workflow.MaxPollInterval(), minWait)
	wait := minWait

	for {
		if claimCtx.Err() != nil {
			return
		}
		job, err := m.client.ClaimJob(claimCtx, pool.Queue, owner, m.leaseDuration)
		if err != nil {
			if claimCtx.Err() != nil {
				return
			}
			m.handleClaimError(claimCtx, logger, err)
			continue
		}
		if job == nil {
			if !sleepContext(claimCtx, wait) {
				return
			}
			wait = min(wait*2, maxWait)
			continue
		}
		wait = minWait
		m.processJob(jobCtx, pool, logger, job)
	}
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logging.ErrorWithContext(logger, "failed to claim job", "job_claim_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check backend availability"),
	)
	sleepContext(ctx, m.cfg.Workflow.ErrorRetryDuration())
}

// sleepContext waits for d and reports false when ctx ended first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
