package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"weft/internal/config"
	"weft/internal/logging"
	"weft/internal/services"
)

const (
	defaultCompletionURL = "https://openrouter.ai/api/v1/chat/completions"
	defaultEmbeddingURL  = "https://openrouter.ai/api/v1/embeddings"
	defaultHTTPTimeout   = 15 * time.Second
	maxResponseBody      = 8 << 20
)

// Config holds the provider endpoints, model names, and credentials.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingURL   string
	EmbeddingModel string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// FromConfig maps the llm section of the weft configuration.
func FromConfig(cfg *config.Config) Config {
	l := cfg.LLM
	return Config{
		APIKey:         l.APIKey,
		BaseURL:        l.BaseURL,
		Model:          l.Model,
		EmbeddingURL:   l.EmbeddingURL,
		EmbeddingModel: l.EmbeddingModel,
		Referer:        l.Referer,
		Title:          l.Title,
		TimeoutSeconds: l.TimeoutSeconds,
	}
}

func (c Config) trimmed() Config {
	out := Config{
		APIKey:         strings.TrimSpace(c.APIKey),
		BaseURL:        strings.TrimSpace(c.BaseURL),
		Model:          strings.TrimSpace(c.Model),
		EmbeddingURL:   strings.TrimSpace(c.EmbeddingURL),
		EmbeddingModel: strings.TrimSpace(c.EmbeddingModel),
		Referer:        strings.TrimSpace(c.Referer),
		Title:          strings.TrimSpace(c.Title),
		TimeoutSeconds: c.TimeoutSeconds,
	}
	if out.BaseURL == "" {
		out.BaseURL = defaultCompletionURL
	}
	if out.EmbeddingURL == "" {
		out.EmbeddingURL = defaultEmbeddingURL
	}
	return out
}

// Client calls an OpenRouter-compatible completion and embedding API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
	retry  retryPolicy
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
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

// WithRetryMaxAttempts bounds the attempts per call. One disables retries.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.retry.attempts = attempts }
}

// WithRetryBackoff sets the first retry delay and the cap applied to every
// delay, Retry-After hints included.
func WithRetryBackoff(initial, max time.Duration) Option {
	return func(c *Client) {
		c.retry.initial = initial
		c.retry.max = max
	}
}

// NewClient constructs a client. Missing endpoints default to OpenRouter.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg:    cfg.trimmed(),
		http:   &http.Client{Timeout: timeout},
		logger: logging.NewNop(),
		retry:  defaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.APIKey != ""
}

// CompleteJSON sends a system and user prompt pair in JSON response mode and
// returns the raw payload the model produced. Use DecodeJSON to parse it.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	switch {
	case systemPrompt == "":
		return "", services.Wrap(services.ErrValidation, "llm", "complete", "system prompt required", nil)
	case userPrompt == "":
		return "", services.Wrap(services.ErrValidation, "llm", "complete", "user prompt required", nil)
	case !c.Configured():
		return "", services.Wrap(services.ErrConfiguration, "llm", "complete", "api key required", nil)
	}
	content, err := c.complete(ctx, "complete", systemPrompt, userPrompt)
	if err != nil {
		return "", classify("complete", err)
	}
	return content, nil
}

// HealthCheck sends a tiny JSON round trip to prove the key and model work.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.Configured() {
		return services.Wrap(services.ErrConfiguration, "llm", "health", "api key required", nil)
	}
	content, err := c.complete(ctx, "health", "You must respond with JSON only.", `Respond with {"ok":true}`)
	if err != nil {
		return classify("health", err)
	}
	var pong struct {
		OK bool `json:"ok"`
	}
	if err := DecodeJSON(content, &pong); err != nil {
		return fmt.Errorf("llm health: parse payload: %w", err)
	}
	if !pong.OK {
		return fmt.Errorf("llm health: unexpected response %s", snippet(content))
	}
	return nil
}

// post sends one JSON request and returns the response body. Non-2xx
// responses come back as *statusError.
func (c *Client) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llm request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("llm request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if ref := c.cfg.Referer; ref != "" {
		req.Header.Set("HTTP-Referer", ref)
		req.Header.Set("Referer", ref)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request (timeout=%s): %w", c.http.Timeout, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("llm request: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, &statusError{
			Code:       resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
	return body, nil
}
