// Package remote implements backend.Client against a weft API server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"weft/internal/api"
	"weft/internal/backend"
	"weft/internal/config"
	"weft/internal/logging"
	"weft/internal/services"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxElapsed = 30 * time.Second
	maxErrorBody      = 64 << 10
)

// Client talks to the API exposed by internal/api.
type Client struct {
	baseURL    *url.URL
	token      string
	http       *http.Client
	logger     *slog.Logger
	maxElapsed time.Duration
}

var _ backend.Client = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithLogger attaches a logger for retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxElapsed bounds the total time spent retrying one call; zero
// disables retries.
func WithMaxElapsed(d time.Duration) Option {
	return func(c *Client) { c.maxElapsed = d }
}

// New builds a client for the backend section of cfg.
func New(cfg config.Backend, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, services.Wrap(services.ErrConfiguration, "remote", "new", "backend.url is required for the remote backend", nil)
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, services.Wrap(services.ErrConfiguration, "remote", "new", fmt.Sprintf("invalid backend.url %q", raw), err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:    base,
		token:      cfg.Token,
		http:       &http.Client{Timeout: timeout},
		logger:     logging.NewNop(),
		maxElapsed: defaultMaxElapsed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// call describes one request. Bodies given as readers are not replayable,
// so such calls are attempted once.
type call struct {
	method  string
	path    string
	query   url.Values
	json    any
	body    io.Reader
	headers map[string]string
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/v1" + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do performs req and returns the open response for 2xx statuses. Transport
// failures and retriable statuses are retried with exponential backoff.
func (c *Client) do(ctx context.Context, req call) (*http.Response, error) {
	var payload []byte
	if req.json != nil {
		encoded, err := json.Marshal(req.json)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", req.method, req.path, err)
		}
		payload = encoded
	}
	replayable := req.body == nil

	var resp *http.Response
	op := func() error {
		var body io.Reader = req.body
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, c.endpoint(req.path, req.query), body)
		if err != nil {
			return backoff.Permanent(err)
		}
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		for k, v := range req.headers {
			httpReq.Header.Set(k, v)
		}
		if c.token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.token)
		}

		r, err := c.http.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			wrapped := services.Wrap(services.ErrTransient, "remote", req.method+" "+req.path, "", err)
			if !replayable {
				return backoff.Permanent(wrapped)
			}
			return wrapped
		}
		if r.StatusCode >= 200 && r.StatusCode < 300 {
			resp = r
			return nil
		}
		apiErr := decodeError(req, r)
		if !replayable || !retryableStatus(r.StatusCode) || !services.Retriable(apiErr) {
			return backoff.Permanent(apiErr)
		}
		return apiErr
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = c.maxElapsed
	var b backoff.BackOff = policy
	if c.maxElapsed <= 0 {
		b = &backoff.StopBackOff{}
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("remote backend retry",
			logging.String("path", req.path),
			logging.Duration("wait", wait),
			logging.Error(err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return resp, nil
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func decodeError(req call, resp *http.Response) error {
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload api.ErrorResponse
	if err := json.Unmarshal(data, &payload); err != nil || payload.Kind == "" {
		marker := services.ErrTransient
		switch {
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			marker = services.ErrConfiguration
		case resp.StatusCode == http.StatusNotFound:
			marker = services.ErrNotFound
		case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
			marker = services.ErrPermanent
		}
		return services.Wrap(marker, "remote", req.method+" "+req.path,
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))), nil)
	}
	return services.Wrap(services.MarkerFor(payload.Kind), "remote", req.method+" "+req.path, payload.Error, nil)
}

// doJSON performs req and decodes the response into out when non-nil. A 204
// leaves out untouched and reports found=false.
func (c *Client) doJSON(ctx context.Context, req call, out any) (found bool, err error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent || out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode != http.StatusNoContent, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, services.Wrap(services.ErrTransient, "remote", req.method+" "+req.path, "decode response", err)
	}
	return true, nil
}

func (c *Client) doStream(ctx context.Context, req call) (io.ReadCloser, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func jobPath(jobID, action string) string {
	return "/jobs/" + url.PathEscape(jobID) + "/" + action
}

var errEmptyID = errors.New("id is required")

func requireID(op, id string) error {
	if strings.TrimSpace(id) == "" {
		return services.Wrap(services.ErrValidation, "remote", op, "", errEmptyID)
	}
	return nil
}
