package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"weft/internal/backend"
	"weft/internal/services"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EnqueueJob inserts a pending job that is claimable immediately.
func (s *Store) EnqueueJob(ctx context.Context, req backend.EnqueueRequest) (*backend.Job, error) {
	var job *backend.Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		job, err = s.insertJob(ctx, tx, req, s.timestamp())
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Store) insertJob(ctx context.Context, q querier, req backend.EnqueueRequest, availableAt time.Time) (*backend.Job, error) {
	queue := strings.TrimSpace(req.Queue)
	activityID := strings.TrimSpace(req.ActivityID)
	if queue == "" {
		return nil, validationError("enqueue", "queue is required")
	}
	if activityID == "" {
		return nil, validationError("enqueue", "activity is required")
	}
	if err := req.Target.Validate(); err != nil {
		return nil, validationError("enqueue", err.Error())
	}
	target, err := resolveRef(ctx, q, req.Target)
	if err != nil {
		return nil, err
	}
	configJSON, err := encodeJSON(req.Configuration)
	if err != nil {
		return nil, validationError("enqueue", fmt.Sprintf("encode configuration: %v", err))
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.defaultMaxAttempts
	}

	now := formatTime(s.timestamp())
	id := uuid.NewString()
	var metadataID, metadataVersion, collectionID any
	if target.IsCollection() {
		collectionID = target.CollectionID
	} else {
		metadataID = target.MetadataID
		metadataVersion = target.MetadataVersion
	}
	row := q.QueryRowContext(ctx,
		`INSERT INTO jobs (
            id, queue, metadata_id, metadata_version, collection_id, workflow_id, activity_id,
            configuration_json, attempts, max_attempts, phase, status, available_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, '', ?, ?, ?, ?)
        RETURNING `+jobColumns,
		id,
		queue,
		metadataID,
		metadataVersion,
		collectionID,
		nullableString(req.WorkflowID),
		activityID,
		configJSON,
		maxAttempts,
		backend.JobPending,
		formatTime(availableAt),
		now,
		now,
	)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// ClaimJob leases the oldest available job in queue to owner. Pending jobs
// whose availability time has passed and running jobs whose lease expired are
// both claimable; the claim increments the attempt counter.
func (s *Store) ClaimJob(ctx context.Context, queue, owner string, lease time.Duration) (*backend.Job, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, validationError("claim", "owner is required")
	}
	now := s.timestamp()
	nowText := formatTime(now)
	var job *backend.Job
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`UPDATE jobs
             SET status = ?, lease_owner = ?, lease_expires_at = ?, attempts = attempts + 1, updated_at = ?
             WHERE id = (
                 SELECT id FROM jobs
                 WHERE queue = ?
                   AND ((status = ? AND available_at <= ?) OR (status = ? AND lease_expires_at < ?))
                 ORDER BY available_at, created_at
                 LIMIT 1
             )
             RETURNING `+jobColumns,
			backend.JobRunning,
			owner,
			formatTime(now.Add(lease)),
			nowText,
			queue,
			backend.JobPending,
			nowText,
			backend.JobRunning,
			nowText,
		)
		claimed, err := scanJob(row)
		if err != nil {
			return err
		}
		job = claimed
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// leasedUpdate applies an update guarded by lease ownership. Zero affected
// rows means another owner holds the job or it already finished.
func (s *Store) leasedUpdate(ctx context.Context, op, jobID, owner, set string, args ...any) error {
	query := `UPDATE jobs SET ` + set + ` WHERE id = ? AND status = ? AND lease_owner = ?`
	args = append(args, jobID, backend.JobRunning, owner)
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrLeaseLost, "store", op, fmt.Sprintf("job %s is not leased to %s", jobID, owner), nil)
	}
	return nil
}

// RenewLease extends the lease on a running job.
func (s *Store) RenewLease(ctx context.Context, jobID, owner string, lease time.Duration) error {
	now := s.timestamp()
	return s.leasedUpdate(ctx, "renew lease", jobID, owner,
		`lease_expires_at = ?, updated_at = ?`,
		formatTime(now.Add(lease)), formatTime(now))
}

// SetJobPhase records progress that a retry must not repeat, together with
// the next state the activity computed.
func (s *Store) SetJobPhase(ctx context.Context, jobID, owner string, progress backend.Progress) error {
	return s.leasedUpdate(ctx, "set phase", jobID, owner,
		`phase = ?, next_state = ?, next_immediate = ?, updated_at = ?`,
		string(progress.Phase), nullableString(progress.NextState), progress.Immediate, formatTime(s.timestamp()))
}

// CompleteJob marks a job complete and releases its lease.
func (s *Store) CompleteJob(ctx context.Context, jobID, owner string) error {
	return s.leasedUpdate(ctx, "complete job", jobID, owner,
		`status = ?, lease_owner = NULL, lease_expires_at = NULL, last_error = NULL, updated_at = ?`,
		backend.JobComplete, formatTime(s.timestamp()))
}

// RetryJob returns a job to pending, claimable again at availableAt.
func (s *Store) RetryJob(ctx context.Context, jobID, owner string, availableAt time.Time, reason string) error {
	return s.leasedUpdate(ctx, "retry job", jobID, owner,
		`status = ?, lease_owner = NULL, lease_expires_at = NULL, available_at = ?, last_error = ?, updated_at = ?`,
		backend.JobPending, formatTime(availableAt), nullableString(reason), formatTime(s.timestamp()))
}

// FailJob marks a job permanently failed.
func (s *Store) FailJob(ctx context.Context, jobID, owner, reason string) error {
	return s.leasedUpdate(ctx, "fail job", jobID, owner,
		`status = ?, lease_owner = NULL, lease_expires_at = NULL, last_error = ?, updated_at = ?`,
		backend.JobFailed, nullableString(reason), formatTime(s.timestamp()))
}

// ReleaseJob hands an interrupted job back to the queue without counting the
// attempt against its budget.
func (s *Store) ReleaseJob(ctx context.Context, jobID, owner string) error {
	now := formatTime(s.timestamp())
	return s.leasedUpdate(ctx, "release job", jobID, owner,
		`status = ?, lease_owner = NULL, lease_expires_at = NULL, attempts = MAX(attempts - 1, 0), available_at = ?, updated_at = ?`,
		backend.JobPending, now, now)
}
