package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"weft/internal/backend"
)

// GetJob fetches a job by identifier.
func (s *Store) GetJob(ctx context.Context, jobID string) (*backend.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError("get job", fmt.Sprintf("job %s", jobID))
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs ordered by creation time.
func (s *Store) ListJobs(ctx context.Context, filter backend.JobFilter) ([]*backend.Job, error) {
	var (
		clauses []string
		args    []any
	)
	if queue := strings.TrimSpace(filter.Queue); queue != "" {
		clauses = append(clauses, "queue = ?")
		args = append(args, queue)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*backend.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// JobStats counts jobs by queue and status.
func (s *Store) JobStats(ctx context.Context) (map[string]map[backend.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT queue, status, COUNT(1) FROM jobs GROUP BY queue, status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]map[backend.JobStatus]int)
	for rows.Next() {
		var (
			queue  string
			status backend.JobStatus
			count  int
		)
		if err := rows.Scan(&queue, &status, &count); err != nil {
			return nil, err
		}
		if stats[queue] == nil {
			stats[queue] = make(map[backend.JobStatus]int)
		}
		stats[queue][status] = count
	}
	return stats, rows.Err()
}

// RetryFailedJobs moves failed jobs back to pending with a fresh attempt
// budget. The recorded phase is kept so completed steps are not repeated,
// except failing, which restarts the job from its activity.
// With no ids every failed job is retried.
func (s *Store) RetryFailedJobs(ctx context.Context, jobIDs ...string) (int, error) {
	now := formatTime(s.timestamp())
	query := `UPDATE jobs
        SET status = ?, attempts = 0, last_error = NULL, available_at = ?, updated_at = ?,
            phase = CASE WHEN phase = ? THEN '' ELSE phase END
        WHERE status = ?`
	args := []any{backend.JobPending, now, now, backend.PhaseFailing, backend.JobFailed}
	if len(jobIDs) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(jobIDs)) + `)`
		for _, id := range jobIDs {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}
