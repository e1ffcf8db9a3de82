package remote

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"weft/internal/api"
	"weft/internal/backend"
)

func (c *Client) EnqueueJob(ctx context.Context, req backend.EnqueueRequest) (*backend.Job, error) {
	var job backend.Job
	if _, err := c.doJSON(ctx, call{method: http.MethodPost, path: "/jobs", json: req}, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// EnqueueWorkflow is retried like any JSON call, so a 5xx returned after the
// server committed can start the workflow twice.
func (c *Client) EnqueueWorkflow(ctx context.Context, workflowID string, target backend.ContentRef) ([]*backend.Job, error) {
	if err := requireID("enqueue workflow", workflowID); err != nil {
		return nil, err
	}
	var jobs []*backend.Job
	_, err := c.doJSON(ctx, call{
		method: http.MethodPost,
		path:   "/workflows/" + url.PathEscape(workflowID) + "/enqueue",
		json:   target,
	}, &jobs)
	return jobs, err
}

func (c *Client) ClaimJob(ctx context.Context, queue, owner string, lease time.Duration) (*backend.Job, error) {
	var job backend.Job
	found, err := c.doJSON(ctx, call{
		method: http.MethodPost,
		path:   "/queues/" + url.PathEscape(queue) + "/claim",
		json:   api.LeaseRequest{Owner: owner, LeaseMillis: lease.Milliseconds()},
	}, &job)
	if err != nil || !found {
		return nil, err
	}
	return &job, nil
}

func (c *Client) RenewLease(ctx context.Context, jobID, owner string, lease time.Duration) error {
	_, err := c.doJSON(ctx, call{method: http.MethodPost, path: jobPath(jobID, "lease"),
		json: api.LeaseRequest{Owner: owner, LeaseMillis: lease.Milliseconds()}}, nil)
	return err
}

func (c *Client) SetJobPhase(ctx context.Context, jobID, owner string, progress backend.Progress) error {
	_, err := c.doJSON(ctx, call{method: http.MethodPost, path: jobPath(jobID, "phase"),
		json: api.PhaseRequest{Owner: owner, Progress: progress}}, nil)
	return err
}

func (c *Client) CompleteJob(ctx context.Context, jobID, owner string) error {
	_, err := c.doJSON(ctx, call{method: http.MethodPost, path: jobPath(jobID, "complete"),
		json: api.OwnerRequest{Owner: owner}}, nil)
	return err
}

func (c *Client) RetryJob(ctx context.Context, jobID, owner string, availableAt time.Time, reason string) error {
	_, err := c.doJSON(ctx, call{method: http.MethodPost, path: jobPath(jobID, "retry"),
		json: api.RetryRequest{Owner: owner, AvailableAt: availableAt, Reason: reason}}, nil)
	return err
}

func (c *Client) FailJob(ctx context.Context, jobID, owner, reason string) error {
	_, err := c.doJSON(ctx, call{method: http.MethodPost, path: jobPath(jobID, "fail"),
		json: api.FailRequest{Owner: owner, Reason: reason}}, nil)
	return err
}

func (c *Client) ReleaseJob(ctx context.Context, jobID, owner string) error {
	_, err := c.doJSON(ctx, call{method: http.MethodPost, path: jobPath(jobID, "release"),
		json: api.OwnerRequest{Owner: owner}}, nil)
	return err
}

func (c *Client) GetJob(ctx context.Context, jobID string) (*backend.Job, error) {
	if err := requireID("get job", jobID); err != nil {
		return nil, err
	}
	var job backend.Job
	if _, err := c.doJSON(ctx, call{method: http.MethodGet, path: "/jobs/" + url.PathEscape(jobID)}, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) ListJobs(ctx context.Context, filter backend.JobFilter) ([]*backend.Job, error) {
	query := url.Values{}
	if filter.Queue != "" {
		query.Set("queue", filter.Queue)
	}
	for _, status := range filter.Statuses {
		query.Add("status", string(status))
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	var jobs []*backend.Job
	_, err := c.doJSON(ctx, call{method: http.MethodGet, path: "/jobs", query: query}, &jobs)
	return jobs, err
}

func (c *Client) JobStats(ctx context.Context) (map[string]map[backend.JobStatus]int, error) {
	stats := map[string]map[backend.JobStatus]int{}
	_, err := c.doJSON(ctx, call{method: http.MethodGet, path: "/jobs/stats"}, &stats)
	return stats, err
}

func (c *Client) RetryFailedJobs(ctx context.Context, jobIDs ...string) (int, error) {
	var resp api.CountResponse
	_, err := c.doJSON(ctx, call{method: http.MethodPost, path: "/jobs/retry-failed",
		json: api.RetryFailedRequest{IDs: jobIDs}}, &resp)
	return resp.Count, err
}
