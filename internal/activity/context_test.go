package activity_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"weft/internal/activity"
	"weft/internal/backend"
	"weft/internal/services"
	"weft/internal/testsupport"
)

type countingClient struct {
	backend.Client
	mu    sync.Mutex
	reads int
}

func (c *countingClient) GetMetadata(ctx context.Context, id string, version int) (*backend.Metadata, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.Client.GetMetadata(ctx, id, version)
}

func newContext(t *testing.T) (*activity.Context, *countingClient, *backend.Metadata) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	meta := testsupport.NewMetadata(t, st, "clip.mp4", "video/mp4", "frames")
	client := &countingClient{Client: st}
	job := &backend.Job{ID: "job-1", Target: meta.Ref(), ActivityID: "test"}
	return activity.NewContext(job, client, activity.ContextOptions{TempDir: cfg.Paths.TempDir}), client, meta
}

func TestReleaseAllRemovesEverythingOnce(t *testing.T) {
	actx, _, _ := newContext(t)

	f, err := actx.CreateTemp("file-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	_ = f.Close()
	dir, err := actx.CreateTempDir("dir-*")
	if err != nil {
		t.Fatalf("CreateTempDir: %v", err)
	}
	nested := filepath.Join(dir, "nested", "frame.jpg")
	testsupport.WriteFile(t, nested, 16)
	actx.AddFile(filepath.Join(dir, "never-created"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actx.ReleaseAll()
		}()
	}
	wg.Wait()

	for _, path := range []string{f.Name(), dir, nested} {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("expected %s removed, stat err %v", path, err)
		}
	}
	if !actx.Released() {
		t.Fatal("expected context marked released")
	}
	actx.ReleaseAll()
}

func TestMetadataIsCached(t *testing.T) {
	actx, client, meta := newContext(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := actx.Metadata(ctx)
		if err != nil {
			t.Fatalf("Metadata: %v", err)
		}
		if got.ID != meta.ID {
			t.Fatalf("unexpected metadata %+v", got)
		}
	}
	if client.reads != 1 {
		t.Fatalf("expected one backend read, got %d", client.reads)
	}
	if _, err := actx.Collection(ctx); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for collection on metadata job, got %v", err)
	}
}

func TestDownloadRegistersTempFile(t *testing.T) {
	actx, _, _ := newContext(t)

	path, err := actx.Download(context.Background())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if filepath.Ext(path) != ".mp4" {
		t.Fatalf("expected extension preserved, got %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "frames" {
		t.Fatalf("unexpected download %q, %v", data, err)
	}
	actx.ReleaseAll()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("download should be released, stat err %v", err)
	}
}

func TestSetNextState(t *testing.T) {
	actx, _, _ := newContext(t)
	if _, _, ok := actx.NextState(); ok {
		t.Fatal("no next state expected before SetNextState")
	}
	actx.SetNextState(" published ", true)
	state, immediate, ok := actx.NextState()
	if !ok || state != "published" || !immediate {
		t.Fatalf("NextState = %q, %v, %v", state, immediate, ok)
	}
}

func TestEntityAndText(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	note := testsupport.NewMetadata(t, st, "note.md", "text/markdown; charset=utf-8", "hello world")
	actx := activity.NewContext(&backend.Job{Target: note.Ref()}, st, activity.ContextOptions{TempDir: cfg.Paths.TempDir})
	entity, err := actx.Entity(ctx)
	if err != nil {
		t.Fatalf("Entity: %v", err)
	}
	if entity.Name != "note.md" || !entity.Ref.IsMetadata() {
		t.Fatalf("unexpected entity %+v", entity)
	}
	text, err := actx.Text(ctx, 5)
	if err != nil || text != "hello" {
		t.Fatalf("Text = %q, %v", text, err)
	}

	coll, err := st.CreateCollection(ctx, "Album", map[string]any{"year": "1999"})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	actx = activity.NewContext(&backend.Job{Target: backend.CollectionRef(coll.ID)}, st, activity.ContextOptions{TempDir: cfg.Paths.TempDir})
	entity, err = actx.Entity(ctx)
	if err != nil || entity.Name != "Album" || !entity.Ref.IsCollection() {
		t.Fatalf("collection entity %+v, %v", entity, err)
	}
	if text, err := actx.Text(ctx, 0); err != nil || text != "" {
		t.Fatalf("collection text = %q, %v", text, err)
	}
}

func TestIsTextual(t *testing.T) {
	tests := map[string]bool{
		"text/plain":               true,
		"Text/HTML; charset=utf-8": true,
		"application/json":         true,
		"application/ld+json":      true,
		"video/mp4":                false,
		"application/octet-stream": false,
		"":                         false,
	}
	for in, want := range tests {
		if got := activity.IsTextual(in); got != want {
			t.Fatalf("IsTextual(%q) = %v, want %v", in, got, want)
		}
	}
}
