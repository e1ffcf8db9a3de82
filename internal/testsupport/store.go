package testsupport

import (
	"context"
	"strings"
	"testing"
	"time"

	"weft/internal/backend"
	"weft/internal/config"
	"weft/internal/storage"
	"weft/internal/store"
)

// MustOpenStore opens a filesystem-backed store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...store.Option) *store.Store {
	t.Helper()

	blobs, err := storage.NewFS(cfg.Paths.ContentDir)
	if err != nil {
		t.Fatalf("storage.NewFS: %v", err)
	}
	st, err := store.Open(cfg, blobs, opts...)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// NewMetadata creates a metadata entity with text content.
func NewMetadata(t testing.TB, client backend.Content, name, contentType, content string) *backend.Metadata {
	t.Helper()

	meta, err := client.CreateMetadata(context.Background(), backend.MetadataInput{Name: name, ContentType: contentType}, strings.NewReader(content))
	if err != nil {
		t.Fatalf("CreateMetadata: %v", err)
	}
	return meta
}

// MustDefine installs definitions, failing the test on the first error.
func MustDefine(t testing.TB, client backend.Definitions, defs ...backend.Definition) {
	t.Helper()

	for _, def := range defs {
		if err := client.CreateDefinition(context.Background(), def); err != nil {
			t.Fatalf("CreateDefinition %s/%s: %v", def.Category, def.Key, err)
		}
	}
}

// ClaimJob enqueues an activity job against target on the default queue and
// leases it to a test worker.
func ClaimJob(t testing.TB, client backend.Jobs, activityID string, target backend.ContentRef, configuration map[string]any) *backend.Job {
	t.Helper()
	ctx := context.Background()
	if _, err := client.EnqueueJob(ctx, backend.EnqueueRequest{
		Queue:         backend.DefaultQueue,
		Target:        target,
		ActivityID:    activityID,
		Configuration: configuration,
	}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	job, err := client.ClaimJob(ctx, backend.DefaultQueue, "test-worker", time.Minute)
	if err != nil || job == nil {
		t.Fatalf("ClaimJob: %+v, %v", job, err)
	}
	return job
}
