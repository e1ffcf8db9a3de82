package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"weft/internal/services"
)

// recordingTimer fires immediately and remembers every requested wait.
type recordingTimer struct {
	waits []time.Duration
	ch    chan time.Time
}

func (r *recordingTimer) Start(d time.Duration) {
	r.waits = append(r.waits, d)
	r.ch = make(chan time.Time, 1)
	r.ch <- time.Now()
}

func (r *recordingTimer) Stop() {}

func (r *recordingTimer) C() <-chan time.Time { return r.ch }

func choices(choice map[string]any) map[string]any {
	return map[string]any{"choices": []any{choice}}
}

func writeJSON(t *testing.T, w http.ResponseWriter, payload any) {
	t.Helper()
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestCompleteJSONPayloadShapes(t *testing.T) {
	const doc = `{"label":"cat","score":0.82}`
	tests := []struct {
		name   string
		choice map[string]any
		want   string
	}{
		{
			name:   "message content",
			choice: map[string]any{"message": map[string]any{"content": doc}},
			want:   doc,
		},
		{
			name:   "code fence kept raw",
			choice: map[string]any{"message": map[string]any{"content": "```json\n" + doc + "\n```"}},
			want:   "```json\n" + doc + "\n```",
		},
		{
			name: "tool call arguments",
			choice: map[string]any{
				"finish_reason": "tool_calls",
				"message": map[string]any{
					"content": "",
					"tool_calls": []any{map[string]any{
						"type":     "function",
						"function": map[string]any{"name": "emit", "arguments": doc},
					}},
				},
			},
			want: doc,
		},
		{
			name: "function call arguments",
			choice: map[string]any{"message": map[string]any{
				"function_call": map[string]any{"name": "emit", "arguments": doc},
			}},
			want: doc,
		},
		{
			name:   "streaming delta",
			choice: map[string]any{"delta": map[string]any{"content": doc}},
			want:   doc,
		},
		{
			name:   "legacy text",
			choice: map[string]any{"finish_reason": "stop", "text": doc},
			want:   doc,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, choices(tt.choice))
			}))
			defer server.Close()

			client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
			got, err := client.CompleteJSON(context.Background(), "system", "user")
			if err != nil {
				t.Fatalf("CompleteJSON: %v", err)
			}
			if got != tt.want {
				t.Fatalf("payload = %q, want %q", got, tt.want)
			}
			var decoded struct {
				Label string  `json:"label"`
				Score float64 `json:"score"`
			}
			if err := DecodeJSON(got, &decoded); err != nil {
				t.Fatalf("DecodeJSON: %v", err)
			}
			if decoded.Label != "cat" || decoded.Score != 0.82 {
				t.Fatalf("decoded = %+v", decoded)
			}
		})
	}
}

func TestCompleteJSONRequestShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("X-Title"); got != "weft" {
			t.Errorf("x-title = %q", got)
		}
		if got := r.Header.Get("HTTP-Referer"); got != "https://example.test" {
			t.Errorf("referer = %q", got)
		}
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "demo" || req.ResponseFormat["type"] != "json_object" {
			t.Errorf("unexpected request %+v", req)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "describe this" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		writeJSON(t, w, choices(map[string]any{"message": map[string]any{"content": "{}"}}))
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:  " secret ",
		BaseURL: server.URL,
		Model:   "demo",
		Referer: "https://example.test",
		Title:   "weft",
	})
	if _, err := client.CompleteJSON(context.Background(), " be terse ", " describe this "); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
}

func TestCompleteJSONRejectsBadInput(t *testing.T) {
	configured := NewClient(Config{APIKey: "test", Model: "demo"})
	if _, err := configured.CompleteJSON(context.Background(), "  ", "user"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("blank system prompt: got %v", err)
	}
	if _, err := configured.CompleteJSON(context.Background(), "system", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("blank user prompt: got %v", err)
	}
	bare := NewClient(Config{Model: "demo"})
	if bare.Configured() {
		t.Fatal("client without key reports configured")
	}
	if _, err := bare.CompleteJSON(context.Background(), "system", "user"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("missing key: got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, choices(map[string]any{"message": map[string]any{"content": "```json\n{\"ok\":true}\n```"}}))
		}))
		defer server.Close()
		client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
		if err := client.HealthCheck(context.Background()); err != nil {
			t.Fatalf("HealthCheck: %v", err)
		}
	})
	t.Run("unauthorized", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(t, w, map[string]string{"error": "unauthorized"})
		}))
		defer server.Close()
		client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"})
		err := client.HealthCheck(context.Background())
		if !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})
	t.Run("not ok", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, choices(map[string]any{"message": map[string]any{"content": `{"ok":false}`}}))
		}))
		defer server.Close()
		client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
		if err := client.HealthCheck(context.Background()); err == nil {
			t.Fatal("expected health check to fail")
		}
	})
}

func TestCompleteJSONEmptyContentExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(t, w, choices(map[string]any{
			"finish_reason": "stop",
			"message":       map[string]any{"content": ""},
		}))
	}))
	defer server.Close()

	timer := &recordingTimer{}
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo"},
		WithRetryMaxAttempts(3),
		WithRetryBackoff(0, 0),
		withTimer(timer),
	)
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected completion to fail")
	}
	for _, want := range []string{"empty content", `finish_reason="stop"`, "response_snippet=", "failed after 3 attempts"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if calls.Load() != 3 || len(timer.waits) != 2 {
		t.Fatalf("calls = %d, waits = %v", calls.Load(), timer.waits)
	}
}

func TestCompleteJSONRetrySchedule(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		header    string
		initial   time.Duration
		max       time.Duration
		wantWaits []time.Duration
	}{
		{
			name:      "retry-after hint",
			failures:  1,
			header:    "1",
			initial:   0,
			max:       10 * time.Second,
			wantWaits: []time.Duration{time.Second},
		},
		{
			name:      "retry-after capped",
			failures:  1,
			header:    "120",
			initial:   0,
			max:       5 * time.Second,
			wantWaits: []time.Duration{5 * time.Second},
		},
		{
			name:      "exponential doubling",
			failures:  3,
			initial:   time.Second,
			max:       3 * time.Second,
			wantWaits: []time.Duration{time.Second, 2 * time.Second, 3 * time.Second},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) <= tt.failures {
					if tt.header != "" {
						w.Header().Set("Retry-After", tt.header)
						w.WriteHeader(http.StatusTooManyRequests)
					} else {
						w.WriteHeader(http.StatusServiceUnavailable)
					}
					return
				}
				writeJSON(t, w, choices(map[string]any{"message": map[string]any{"content": `{"ok":true}`}}))
			}))
			defer server.Close()

			timer := &recordingTimer{}
			client := NewClient(
				Config{APIKey: "test", BaseURL: server.URL, Model: "demo"},
				WithRetryMaxAttempts(5),
				WithRetryBackoff(tt.initial, tt.max),
				withTimer(timer),
			)
			if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
				t.Fatalf("CompleteJSON: %v", err)
			}
			if !reflect.DeepEqual(timer.waits, tt.wantWaits) {
				t.Fatalf("waits = %v, want %v", timer.waits, tt.wantWaits)
			}
		})
	}
}

func TestCompleteJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"bad model"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo"},
		withTimer(&recordingTimer{}),
	)
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{name: "plain", content: `{"label":"a"}`, want: "a"},
		{name: "fenced", content: "```json\n{\"label\":\"b\"}\n```", want: "b"},
		{name: "bare fence", content: "```\n{\"label\":\"c\"}\n```", want: "c"},
		{name: "prose wrapped", content: `Here you go: {"label":"d"} hope that helps`, want: "d"},
		{name: "empty", content: "  ", wantErr: true},
		{name: "garbage", content: "no json here", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				Label string `json:"label"`
			}
			err := DecodeJSON(tt.content, &out)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, decoded %+v", out)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeJSON: %v", err)
			}
			if out.Label != tt.want {
				t.Fatalf("label = %q, want %q", out.Label, tt.want)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		value string
		want  time.Duration
	}{
		{value: "", want: 0},
		{value: "7", want: 7 * time.Second},
		{value: "-3", want: 0},
		{value: now.Add(30 * time.Second).Format(http.TimeFormat), want: 30 * time.Second},
		{value: now.Add(-time.Minute).Format(http.TimeFormat), want: 0},
		{value: "soon", want: 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.value, now); got != tt.want {
			t.Fatalf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestSnippet(t *testing.T) {
	if got := snippet("  \n\t "); got != "<empty>" {
		t.Fatalf("snippet(blank) = %q", got)
	}
	if got := snippet("a\n  b\tc"); got != "a b c" {
		t.Fatalf("snippet collapses whitespace: %q", got)
	}
	long := strings.Repeat("x", 200)
	if got := snippet(long); len(got) != 163 || !strings.HasSuffix(got, "...") {
		t.Fatalf("snippet(long) = %d chars", len(got))
	}
}
