package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"weft/internal/activity"
	"weft/internal/backend"
	"weft/internal/logging"
	"weft/internal/services"
)

func (m *Manager) processJob(ctx context.Context, pool Pool, workerLogger *slog.Logger, job *backend.Job) {
	start := time.Now()
	m.trackInFlight(1)
	defer m.trackInFlight(-1)
	m.metrics.JobClaimed(pool.Queue, job.ActivityID)

	jobCtx := services.WithJobID(ctx, job.ID)
	jobCtx = services.WithQueue(jobCtx, job.Queue)
	jobCtx = services.WithActivity(jobCtx, job.ActivityID)
	jobCtx = services.WithRequestID(jobCtx, uuid.NewString())
	jobCtx, cancel := context.WithCancelCause(jobCtx)
	defer cancel(nil)

	logger := logging.WithContext(jobCtx, workerLogger).With(
		logging.Int(logging.FieldAttempt, job.Attempts),
		logging.Int("max_attempts", job.MaxAttempts),
	)
	if job.Target.MetadataID != "" {
		logger = logger.With(logging.String(logging.FieldMetadataID, job.Target.MetadataID))
	} else {
		logger = logger.With(logging.String(logging.FieldCollectionID, job.Target.CollectionID))
	}
	logger.Info("job claimed", logging.String("phase", string(job.Phase)))

	if job.Phase == backend.PhaseFailing {
		logger.Info("resuming error state entry",
			logging.Args(logging.DecisionAttrs("activity_resume", "skip_execute", "job phase is failing")...)...)
		m.settle(jobCtx, job, logger, errFailurePending, start)
		return
	}

	if job.MaxAttempts > 0 && job.Attempts > job.MaxAttempts {
		err := services.Wrap(services.ErrPermanent, "workflow", "claim",
			fmt.Sprintf("attempts exhausted after lease expiry (%d of %d)", job.Attempts, job.MaxAttempts), nil)
		m.settle(jobCtx, job, logger, err, start)
		return
	}

	heartbeat := NewHeartbeatMonitor(m.client, logger, m.heartbeatInterval, m.leaseDuration)
	hbCtx, stopHeartbeat := context.WithCancel(jobCtx)
	var wg sync.WaitGroup
	wg.Add(1)
	go heartbeat.StartLoop(hbCtx, &wg, job, func(err error) { cancel(err) })

	err := m.runJob(jobCtx, job, logger)

	stopHeartbeat()
	wg.Wait()

	if cause := context.Cause(jobCtx); cause != nil && cause != context.Canceled {
		err = cause
	}
	m.settle(jobCtx, job, logger, err, start)
}

// runJob executes the activity unless a prior attempt already did, then
// drives the transition. Context resources are released before it returns.
func (m *Manager) runJob(ctx context.Context, job *backend.Job, logger *slog.Logger) (err error) {
	act, err := m.registry.Resolve(job.ActivityID)
	if err != nil {
		return err
	}

	actx := activity.NewContext(job, m.client, activity.ContextOptions{
		Logger:  logger,
		TempDir: m.cfg.Paths.TempDir,
	})
	defer actx.ReleaseAll()
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "activity panicked", "activity_panic",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "activity bug; the job will be retried"),
			)
			err = services.Wrap(services.ErrTransient, "workflow", "execute", fmt.Sprintf("activity panic: %v", r), nil)
		}
	}()

	if job.Phase == backend.PhaseNone {
		execStart := time.Now()
		if err := act.Execute(ctx, actx, job); err != nil {
			return err
		}
		logger.Info("activity executed", logging.Duration("elapsed", time.Since(execStart)))
		progress := backend.Progress{Phase: backend.PhaseExecuted}
		if state, immediate, ok := actx.NextState(); ok {
			progress.NextState, progress.Immediate = state, immediate
		}
		if err := m.client.SetJobPhase(ctx, job.ID, job.LeaseOwner, progress); err != nil {
			return err
		}
		job.Phase, job.NextState, job.NextImmediate = progress.Phase, progress.NextState, progress.Immediate
	} else {
		logger.Info("activity already executed",
			logging.Args(logging.DecisionAttrs("activity_resume", "skip_execute", "job phase is "+string(job.Phase))...)...)
	}

	return m.transitions.Complete(ctx, job, actx)
}
