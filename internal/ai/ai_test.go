package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"weft/internal/activity"
	"weft/internal/ai"
	"weft/internal/backend"
	"weft/internal/services"
	"weft/internal/services/llm"
	"weft/internal/services/vectorstore"
	"weft/internal/store"
	"weft/internal/testsupport"
)

type fixture struct {
	store *store.Store
	meta  *backend.Metadata
	temp  string
}

func newFixture(t *testing.T, contentType, body string) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	meta := testsupport.NewMetadata(t, st, "article.txt", contentType, body)
	if err := st.SetAttributes(context.Background(), meta.Ref(), map[string]any{"author": "Ada"}); err != nil {
		t.Fatalf("SetAttributes: %v", err)
	}
	return &fixture{store: st, meta: meta, temp: cfg.Paths.TempDir}
}

func (f *fixture) run(t *testing.T, act activity.Activity, configuration map[string]any) error {
	t.Helper()
	job := testsupport.ClaimJob(t, f.store, act.ID(), f.meta.Ref(), configuration)
	actx := activity.NewContext(job, f.store, activity.ContextOptions{TempDir: f.temp})
	defer actx.ReleaseAll()
	return act.Execute(context.Background(), actx, job)
}

func completionServer(t *testing.T, content string, seen *string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		for _, m := range req.Messages {
			if m.Role == "user" {
				*seen = m.Content
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestPromptStoresResult(t *testing.T) {
	f := newFixture(t, "text/plain", "The quick brown fox.")
	var userPrompt string
	server := completionServer(t, "```json\n{\"summary\":\"fox\"}\n```", &userPrompt)
	client := llm.NewClient(llm.Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})

	err := f.run(t, ai.NewPrompt(client), map[string]any{
		"user_prompt": `Summarize {{.Name}} by {{index .Attributes "author"}}: {{.Text}}`,
		"output_key":  "summary",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if userPrompt != "Summarize article.txt by Ada: The quick brown fox." {
		t.Fatalf("unexpected rendered prompt %q", userPrompt)
	}

	body, err := f.store.OpenSupplementary(context.Background(), f.meta.Ref(), "summary")
	if err != nil {
		t.Fatalf("OpenSupplementary: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	var result map[string]string
	if err := json.Unmarshal(data, &result); err != nil || result["summary"] != "fox" {
		t.Fatalf("unexpected stored result %s (%v)", data, err)
	}
}

func TestPromptFailures(t *testing.T) {
	var ignored string
	server := completionServer(t, "not json at all", &ignored)
	client := llm.NewClient(llm.Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})

	tests := []struct {
		name   string
		client ai.Completer
		config map[string]any
		want   error
	}{
		{name: "missing user prompt", client: client, config: nil, want: services.ErrConfiguration},
		{name: "bad template", client: client, config: map[string]any{"user_prompt": "{{.Nope"}, want: services.ErrConfiguration},
		{name: "unknown field", client: client, config: map[string]any{"user_prompt": "{{.Missing}}"}, want: services.ErrConfiguration},
		{name: "no client", client: nil, config: map[string]any{"user_prompt": "hi"}, want: services.ErrConfiguration},
		{name: "invalid json", client: client, config: map[string]any{"user_prompt": "hi"}, want: services.ErrExternalTool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "text/plain", "body")
			err := f.run(t, ai.NewPrompt(tt.client), tt.config)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRenderMissingAttributeFails(t *testing.T) {
	_, err := ai.Render("user", `{{.Attributes.lang}}`, ai.PromptData{Attributes: map[string]any{}})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

type fakeEmbedder struct {
	mu      sync.Mutex
	batches [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), inputs...))
	f.mu.Unlock()
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		out[i] = []float32{float32(len(in)), 1}
	}
	return out, nil
}

type memoryVectors struct {
	owner  string
	chunks []vectorstore.Chunk
}

func (m *memoryVectors) Replace(_ context.Context, owner string, chunks []vectorstore.Chunk) error {
	m.owner = owner
	m.chunks = chunks
	return nil
}

func TestEmbeddingsBatchesAndStores(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	f := newFixture(t, "text/plain", text)
	embedder := &fakeEmbedder{}
	vectors := &memoryVectors{}

	err := f.run(t, ai.NewEmbeddings(embedder, vectors), map[string]any{"chunk_size": 200, "chunk_overlap": 20, "batch_size": 2})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if vectors.owner != f.meta.Ref().String() {
		t.Fatalf("owner = %q, want %q", vectors.owner, f.meta.Ref().String())
	}
	want := ai.Chunk(text, 200, 20)
	if len(vectors.chunks) != len(want) {
		t.Fatalf("stored %d chunks, want %d", len(vectors.chunks), len(want))
	}
	for i, c := range vectors.chunks {
		if c.Index != i || c.Text != want[i] || c.Vector[0] != float32(len(want[i])) {
			t.Fatalf("chunk %d mismatch: %+v", i, c)
		}
	}
	for _, batch := range embedder.batches {
		if len(batch) > 2 {
			t.Fatalf("batch of %d exceeds batch_size", len(batch))
		}
	}
}

func TestEmbeddingsFailures(t *testing.T) {
	t.Run("binary content", func(t *testing.T) {
		f := newFixture(t, "video/mp4", "frames")
		err := f.run(t, ai.NewEmbeddings(&fakeEmbedder{}, &memoryVectors{}), nil)
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
	t.Run("no vector store", func(t *testing.T) {
		f := newFixture(t, "text/plain", "words")
		err := f.run(t, ai.NewEmbeddings(&fakeEmbedder{}, nil), nil)
		if !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []string
	}{
		{name: "empty", text: "   ", size: 10, want: nil},
		{name: "short", text: "hello", size: 10, want: []string{"hello"}},
		{name: "word boundary", text: "aaaa bbbb cccc", size: 10, want: []string{"aaaa bbbb", "cccc"}},
		{name: "overlap", text: "abcdefghij", size: 4, overlap: 2, want: []string{"abcd", "cdef", "efgh", "ghij"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ai.Chunk(tt.text, tt.size, tt.overlap)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Fatalf("Chunk = %q, want %q", got, tt.want)
			}
		})
	}
}
