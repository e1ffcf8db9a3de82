// Package transition advances a content entity's workflow state after an
// activity succeeds, and drives it into the error state when a job fails.
//
// Completing the current state and entering the next one are two backend
// calls. Completion is recorded as a job phase before the next state is set,
// so a retried job never completes the same state twice.
package transition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"weft/internal/activity"
	"weft/internal/backend"
	"weft/internal/config"
	"weft/internal/logging"
	"weft/internal/services"
)

const (
	// DefaultStatus is recorded when the job configuration names none.
	DefaultStatus = "complete"
	// EnterStatus is recorded on the entity when it enters a new state.
	EnterStatus = "workflow transition"

	StepCompleteState = "complete_state"
	StepPersistPhase  = "persist_phase"
	StepSetState      = "set_state"
	StepErrorState    = "error_state"
)

// Error reports which transition step failed. Retriability follows the
// wrapped cause.
type Error struct {
	Step string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transition %s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Manager runs the two-step state transition protocol.
type Manager struct {
	client     backend.Client
	errorState string
	retries    uint64
	interval   time.Duration
	maxDelay   time.Duration
	logger     *slog.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithRetryInterval sets the initial in-process retry delay.
func WithRetryInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logging.NewComponentLogger(logger, "transition")
		}
	}
}

// New builds a manager using the workflow section of cfg.
func New(client backend.Client, cfg *config.Config, opts ...Option) *Manager {
	m := &Manager{
		client:     client,
		errorState: strings.TrimSpace(cfg.Workflow.ErrorState),
		retries:    uint64(max(cfg.Workflow.TransitionRetries, 0)),
		interval:   200 * time.Millisecond,
		maxDelay:   5 * time.Second,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Complete finishes the job's current state and enters the next one. A next
// state computed by the activity is persisted with the phase, so a resumed
// job enters the same state.
func (m *Manager) Complete(ctx context.Context, job *backend.Job, actx *activity.Context) error {
	logger := logging.WithContext(ctx, m.logger)
	state, immediate, computed := nextState(job, actx)

	if job.Phase != backend.PhaseStateCompleted {
		status := job.ConfigString("status")
		if status == "" {
			status = DefaultStatus
		}
		if err := m.client.CompleteCurrentState(ctx, job.Target, status); err != nil {
			return &Error{Step: StepCompleteState, Err: err}
		}
		progress := backend.Progress{Phase: backend.PhaseStateCompleted}
		if computed {
			progress.NextState, progress.Immediate = state, immediate
		}
		if err := m.client.SetJobPhase(ctx, job.ID, job.LeaseOwner, progress); err != nil {
			return &Error{Step: StepPersistPhase, Err: err}
		}
		job.Phase, job.NextState, job.NextImmediate = progress.Phase, progress.NextState, progress.Immediate
	} else {
		logger.Info("current state already completed",
			logging.Args(logging.DecisionAttrs("transition_resume", "skip_complete", "job phase is state_completed")...)...)
	}

	if state == "" {
		logger.Debug("no next state configured")
		return nil
	}

	err := m.retry(ctx, func() error {
		return m.client.SetState(ctx, job.Target, state, EnterStatus, immediate)
	})
	if err != nil {
		return &Error{Step: StepSetState, Err: err}
	}
	logger.Info("workflow state advanced",
		logging.String("next_state", state),
		logging.Bool("immediate", immediate),
	)
	return nil
}

// Fail moves the job's entity into the error state, recording reason as the
// state status.
func (m *Manager) Fail(ctx context.Context, job *backend.Job, reason string) error {
	state := job.ConfigString("error_state")
	if state == "" {
		state = m.errorState
	}
	if state == "" {
		return nil
	}
	err := m.retry(ctx, func() error {
		return m.client.SetState(ctx, job.Target, state, reason, true)
	})
	if err != nil {
		return &Error{Step: StepErrorState, Err: err}
	}
	return nil
}

// nextState prefers the state the activity computed in this attempt, then
// one persisted by an earlier attempt, then the job configuration. computed
// reports whether the state came from the activity.
func nextState(job *backend.Job, actx *activity.Context) (state string, immediate, computed bool) {
	if actx != nil {
		if state, immediate, ok := actx.NextState(); ok {
			return state, immediate, true
		}
	}
	if job.NextState != "" {
		return job.NextState, job.NextImmediate, true
	}
	return job.ConfigString("next_state"), job.ConfigBool("immediate"), false
}

// retry runs op with bounded exponential backoff. Non-retriable errors stop
// immediately.
func (m *Manager) retry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.interval
	policy.MaxInterval = m.maxDelay
	policy.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !services.Retriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, m.retries), ctx))
}

// IsTransitionError reports whether err came from a transition step.
func IsTransitionError(err error) (*Error, bool) {
	var terr *Error
	if errors.As(err, &terr) {
		return terr, true
	}
	return nil, false
}
