package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"weft/internal/backend"
	"weft/internal/logging"
	"weft/internal/metrics"
	"weft/internal/services"
)

const settleTimeout = 30 * time.Second

// errFailurePending settles a job claimed in phase failing: the original
// failure is already recorded as the job's last error.
var errFailurePending = services.Wrap(services.ErrPermanent, "workflow", "settle", "error state entry pending", nil)

// settle records the attempt's outcome. It runs on a context detached from
// shutdown so a drained job is still handed back.
func (m *Manager) settle(jobCtx context.Context, job *backend.Job, logger *slog.Logger, runErr error, start time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(jobCtx), settleTimeout)
	defer cancel()

	outcome := m.settleOutcome(ctx, jobCtx, job, logger, runErr)
	m.metrics.JobSettled(job.Queue, job.ActivityID, outcome, time.Since(start))
}

func (m *Manager) settleOutcome(ctx, jobCtx context.Context, job *backend.Job, logger *slog.Logger, runErr error) string {
	switch {
	case runErr == nil:
		if err := m.client.CompleteJob(ctx, job.ID, job.LeaseOwner); err != nil {
			m.logSettleError(logger, "complete", err)
			return metrics.OutcomeInterrupted
		}
		logger.Info("job completed")
		return metrics.OutcomeSucceeded

	case errors.Is(runErr, services.ErrLeaseLost):
		logger.Info("job abandoned",
			logging.Args(logging.DecisionAttrs("job_settle", "abandon", "lease owned by another worker")...)...)
		return metrics.OutcomeInterrupted

	case m.shuttingDown() && jobCtx.Err() != nil:
		if err := m.client.ReleaseJob(ctx, job.ID, job.LeaseOwner); err != nil {
			m.logSettleError(logger, "release", err)
			return metrics.OutcomeInterrupted
		}
		logger.Info("job released for shutdown",
			logging.Args(logging.DecisionAttrs("job_settle", "release", "dispatcher stopping")...)...)
		return metrics.OutcomeInterrupted

	case services.Retriable(runErr) && job.Attempts < job.MaxAttempts:
		delay := retryDelay(job.Attempts, m.cfg.Workflow.RetryBackoffDuration(), m.cfg.Workflow.MaxRetryBackoffDuration())
		if err := m.client.RetryJob(ctx, job.ID, job.LeaseOwner, time.Now().Add(delay), runErr.Error()); err != nil {
			m.logSettleError(logger, "retry", err)
			return metrics.OutcomeInterrupted
		}
		logging.WarnWithContext(logger, "job attempt failed; retry scheduled", "job_retry",
			logging.Error(runErr),
			logging.String("error_class", services.Classification(runErr)),
			logging.Duration("retry_in", delay),
			logging.String(logging.FieldErrorHint, "inspect the error; the job retries automatically"),
			logging.String(logging.FieldImpact, "workflow delayed"),
		)
		return metrics.OutcomeRetried

	default:
		m.setLastError(runErr)
		reason := runErr.Error()
		if job.Phase == backend.PhaseFailing && job.LastError != "" {
			reason = job.LastError
		}
		if err := m.transitions.Fail(ctx, job, reason); err != nil {
			if services.Retriable(err) {
				return m.deferFailure(ctx, job, logger, reason, err)
			}
			logging.ErrorWithContext(logger, "error state rejected", "error_state_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check workflow.error_state names a defined state"),
			)
			reason += "; error state not entered: " + err.Error()
		}
		if err := m.client.FailJob(ctx, job.ID, job.LeaseOwner, reason); err != nil {
			m.logSettleError(logger, "fail", err)
			return metrics.OutcomeInterrupted
		}
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			logging.Error(runErr),
			logging.String("error_class", services.Classification(runErr)),
			logging.String(logging.FieldErrorHint, "fix the cause, then run weft queue retry"),
		)
		return metrics.OutcomeFailed
	}
}

// deferFailure hands a failed job back in phase failing when its entity could
// not enter the error state. The retry skips the activity and only enters the
// error state; it is not bounded by the attempt budget.
func (m *Manager) deferFailure(ctx context.Context, job *backend.Job, logger *slog.Logger, reason string, failErr error) string {
	if job.Phase != backend.PhaseFailing {
		progress := backend.Progress{Phase: backend.PhaseFailing, NextState: job.NextState, Immediate: job.NextImmediate}
		if err := m.client.SetJobPhase(ctx, job.ID, job.LeaseOwner, progress); err != nil {
			m.logSettleError(logger, "defer failure", err)
			return metrics.OutcomeInterrupted
		}
		job.Phase = backend.PhaseFailing
	}
	delay := retryDelay(job.Attempts, m.cfg.Workflow.RetryBackoffDuration(), m.cfg.Workflow.MaxRetryBackoffDuration())
	if err := m.client.RetryJob(ctx, job.ID, job.LeaseOwner, time.Now().Add(delay), reason); err != nil {
		m.logSettleError(logger, "defer failure", err)
		return metrics.OutcomeInterrupted
	}
	logging.WarnWithContext(logger, "error state not entered; failure retry scheduled", "error_state_deferred",
		logging.Error(failErr),
		logging.String("reason", reason),
		logging.Duration("retry_in", delay),
		logging.String(logging.FieldErrorHint, "check the backend; the job enters the error state on its next claim"),
		logging.String(logging.FieldImpact, "entity stays in its current state until then"),
	)
	return metrics.OutcomeRetried
}

func (m *Manager) shuttingDown() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.running
}

func (m *Manager) logSettleError(logger *slog.Logger, action string, err error) {
	m.setLastError(err)
	logging.ErrorWithContext(logger, "failed to settle job", "job_settle_failed",
		logging.String("action", action),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "the lease will expire and the job will be reclaimed"),
	)
}

// retryDelay doubles base for every attempt after the first, capped at limit.
func retryDelay(attempt int, base, limit time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if limit > 0 && delay >= limit {
			break
		}
		delay *= 2
	}
	if limit > 0 && delay > limit {
		delay = limit
	}
	return delay
}
