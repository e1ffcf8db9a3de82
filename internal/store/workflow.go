package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"weft/internal/backend"
	"weft/internal/services"
)

// CompleteCurrentState records the entity's current state as completed with
// status. An entity that has not entered any state has nothing to complete.
func (s *Store) CompleteCurrentState(ctx context.Context, ref backend.ContentRef, status string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		resolved, err := resolveRef(ctx, tx, ref)
		if err != nil {
			return err
		}
		current, err := currentState(ctx, tx, resolved)
		if err != nil {
			return err
		}
		if current == "" {
			return nil
		}
		now := formatTime(s.timestamp())
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO state_history (owner, state, status, completed_at) VALUES (?, ?, ?, ?)`,
			ownerKey(resolved), current, nullableString(status), now,
		); err != nil {
			return fmt.Errorf("record state history: %w", err)
		}
		table, where, args := entityTable(resolved)
		update := append([]any{nullableString(status), now}, args...)
		if _, err := tx.ExecContext(ctx, `UPDATE `+table+` SET state_status = ?, updated_at = ? WHERE `+where, update...); err != nil {
			return fmt.Errorf("update state status: %w", err)
		}
		return nil
	})
}

// SetState moves the entity into stateID and enqueues the state's activity.
// Setting the state the entity already holds is a no-op, so a retried call
// never enqueues twice.
func (s *Store) SetState(ctx context.Context, ref backend.ContentRef, stateID, status string, immediate bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := s.enterState(ctx, tx, ref, stateID, status, enterOptions{immediate: immediate})
		return err
	})
}

// EnqueueWorkflow starts workflowID on target by entering its initial state.
// Unlike SetState it always re-enters the state, restarting a workflow that
// already ran on the entity.
func (s *Store) EnqueueWorkflow(ctx context.Context, workflowID string, target backend.ContentRef) ([]*backend.Job, error) {
	workflowID = strings.TrimSpace(workflowID)
	if workflowID == "" {
		return nil, validationError("enqueue workflow", "workflow id is required")
	}
	var jobs []*backend.Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		def, err := findDefinition(ctx, tx, backend.CategoryWorkflows, workflowID)
		if err != nil {
			return err
		}
		if def == nil {
			return notFoundError("enqueue workflow", fmt.Sprintf("workflow %q", workflowID))
		}
		var body backend.WorkflowBody
		if err := backend.DecodeBody(def.Body, &body); err != nil {
			return services.Wrap(services.ErrConfiguration, "store", "enqueue workflow", fmt.Sprintf("workflow %q body", workflowID), err)
		}
		if strings.TrimSpace(body.InitialState) == "" {
			return services.Wrap(services.ErrConfiguration, "store", "enqueue workflow", fmt.Sprintf("workflow %q has no initial_state", workflowID), nil)
		}
		jobs, err = s.enterState(ctx, tx, target, body.InitialState, "", enterOptions{
			immediate:  true,
			force:      true,
			workflowID: workflowID,
			queue:      body.Queue,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

type enterOptions struct {
	immediate  bool
	force      bool
	workflowID string
	queue      string
}

func (s *Store) enterState(ctx context.Context, tx *sql.Tx, ref backend.ContentRef, stateID, status string, opts enterOptions) ([]*backend.Job, error) {
	stateID = strings.TrimSpace(stateID)
	if stateID == "" {
		return nil, validationError("set state", "state is required")
	}
	resolved, err := resolveRef(ctx, tx, ref)
	if err != nil {
		return nil, err
	}
	current, err := currentState(ctx, tx, resolved)
	if err != nil {
		return nil, err
	}
	if current == stateID && !opts.force {
		return nil, nil
	}

	var state backend.StateBody
	stateDef, err := findDefinition(ctx, tx, backend.CategoryStates, stateID)
	if err != nil {
		return nil, err
	}
	if stateDef != nil {
		if err := backend.DecodeBody(stateDef.Body, &state); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "store", "set state", fmt.Sprintf("state %q body", stateID), err)
		}
	}

	if current != "" && !opts.force && !state.Error {
		allowed, err := transitionAllowed(ctx, tx, current, stateID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, validationError("set state", fmt.Sprintf("no transition from %q to %q", current, stateID))
		}
	}

	now := s.timestamp()
	table, where, args := entityTable(resolved)
	update := append([]any{stateID, nullableString(status), formatTime(now)}, args...)
	if _, err := tx.ExecContext(ctx, `UPDATE `+table+` SET workflow_state = ?, state_status = ?, updated_at = ? WHERE `+where, update...); err != nil {
		return nil, fmt.Errorf("update workflow state: %w", err)
	}

	if state.Activity == nil || strings.TrimSpace(state.Activity.ID) == "" {
		return nil, nil
	}
	queue := firstNonEmpty(state.Activity.Queue, opts.queue, backend.DefaultQueue)
	availableAt := now
	if !opts.immediate {
		availableAt = now.Add(s.deferredDelay)
	}
	job, err := s.insertJob(ctx, tx, backend.EnqueueRequest{
		Queue:         queue,
		Target:        resolved,
		WorkflowID:    opts.workflowID,
		ActivityID:    state.Activity.ID,
		Configuration: state.Activity.Configuration,
		MaxAttempts:   state.Activity.MaxAttempts,
	}, availableAt)
	if err != nil {
		return nil, err
	}
	return []*backend.Job{job}, nil
}

func currentState(ctx context.Context, q querier, ref backend.ContentRef) (string, error) {
	table, where, args := entityTable(ref)
	var state sql.NullString
	err := q.QueryRowContext(ctx, `SELECT workflow_state FROM `+table+` WHERE `+where, args...).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFoundError("state", ref.String())
	}
	if err != nil {
		return "", fmt.Errorf("read workflow state: %w", err)
	}
	return state.String, nil
}

// transitionAllowed permits any target when no transitions leave from; once
// transitions are defined for from, the target must be one of them.
func transitionAllowed(ctx context.Context, q querier, from, to string) (bool, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT json_extract(body_json, '$.to') FROM definitions
         WHERE category = ? AND json_extract(body_json, '$.from') = ?`,
		backend.CategoryTransitions, from,
	)
	if err != nil {
		return false, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	defined := false
	for rows.Next() {
		var target sql.NullString
		if err := rows.Scan(&target); err != nil {
			return false, err
		}
		defined = true
		if target.String == to {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return !defined, nil
}

// StateHistory lists completed states oldest first.
func (s *Store) StateHistory(ctx context.Context, ref backend.ContentRef) ([]backend.StateEvent, error) {
	resolved, err := resolveRef(ctx, s.db, ref)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, status, completed_at FROM state_history WHERE owner = ? ORDER BY id`,
		ownerKey(resolved),
	)
	if err != nil {
		return nil, fmt.Errorf("state history: %w", err)
	}
	defer rows.Close()

	var events []backend.StateEvent
	for rows.Next() {
		var (
			event     = backend.StateEvent{Target: resolved}
			status    sql.NullString
			completed string
		)
		if err := rows.Scan(&event.State, &status, &completed); err != nil {
			return nil, err
		}
		event.Status = status.String
		event.CompletedAt, _ = parseTimeString(completed)
		events = append(events, event)
	}
	return events, rows.Err()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
