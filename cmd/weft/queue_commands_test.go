package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"weft/internal/backend"
	"weft/internal/testsupport"
)

func TestQueueListFiltersByStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()
	meta := testsupport.NewMetadata(t, env.store, "a.txt", "text/plain", "a")

	failed := testsupport.ClaimJob(t, env.store, "search.index.add", meta.Ref(), nil)
	if err := env.store.FailJob(ctx, failed.ID, "test-worker", "index unavailable"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	pending, err := env.store.EnqueueJob(ctx, backend.EnqueueRequest{
		Queue:      backend.DefaultQueue,
		Target:     meta.Ref(),
		ActivityID: "metadata.transition.to",
	})
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	out, _, err := env.run(t, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, failed.ID)
	requireContains(t, out, pending.ID)
	requireContains(t, out, "Failed")
	requireContains(t, out, "index unavailable")

	out, _, err = env.run(t, "--json", "queue", "list", "--status", "failed")
	if err != nil {
		t.Fatalf("queue list --status failed: %v", err)
	}
	var jobs []backend.Job
	if err := json.Unmarshal([]byte(out), &jobs); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(jobs) != 1 || jobs[0].ID != failed.ID {
		t.Fatalf("expected only the failed job, got %+v", jobs)
	}

	if _, _, err := env.run(t, "queue", "list", "--status", "stuck"); err == nil || !strings.Contains(err.Error(), "unknown job status") {
		t.Fatalf("expected unknown status error, got %v", err)
	}
}

func TestQueueRetryResetsFailedJobs(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()
	meta := testsupport.NewMetadata(t, env.store, "a.txt", "text/plain", "a")

	out, _, err := env.run(t, "queue", "retry")
	if err != nil {
		t.Fatalf("queue retry (empty): %v", err)
	}
	requireContains(t, out, "No failed jobs to retry")

	job := testsupport.ClaimJob(t, env.store, "search.index.add", meta.Ref(), nil)
	if err := env.store.FailJob(ctx, job.ID, "test-worker", "boom"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	out, _, err = env.run(t, "queue", "retry", job.ID)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Retrying 1 job(s)")

	got, err := env.store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != backend.JobPending || got.Attempts != 0 {
		t.Fatalf("expected pending job with reset attempts, got %s attempts=%d", got.Status, got.Attempts)
	}
}

func TestQueueHealthReportsStoreAndQueues(t *testing.T) {
	env := setupCLITestEnv(t)
	meta := testsupport.NewMetadata(t, env.store, "a.txt", "text/plain", "a")
	testsupport.ClaimJob(t, env.store, "search.index.add", meta.Ref(), nil)

	out, _, err := env.run(t, "queue", "health")
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	for _, want := range []string{"Integrity check:", "[OK] yes", "Reachable:", "media", "Running"} {
		requireContains(t, out, want)
	}
}
