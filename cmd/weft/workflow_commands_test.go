package main

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"weft/internal/backend"
	"weft/internal/testsupport"
)

func TestEnqueueRequiresExactlyOneTarget(t *testing.T) {
	env := setupCLITestEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no target", []string{"--workflow-id", "video"}, "a target is required"},
		{"both targets", []string{"--workflow-id", "video", "--metadata-id", "m", "--collection-id", "c"}, "exactly one"},
		{"version on collection", []string{"--workflow-id", "video", "--collection-id", "c", "--version", "2"}, "--version only applies"},
		{"config without activity", []string{"--workflow-id", "video", "--metadata-id", "m", "--config", "a=b"}, "require --activity"},
		{"malformed config", []string{"--workflow-id", "video", "--metadata-id", "m", "--activity", "x", "--config", "novalue"}, "expected key=value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.run(t, append([]string{"workflows", "enqueue"}, tt.args...)...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestEnqueueDirectActivityJob(t *testing.T) {
	env := setupCLITestEnv(t)
	meta := testsupport.NewMetadata(t, env.store, "notes.txt", "text/plain", "hello")

	out, _, err := env.run(t, "--json", "workflows", "enqueue",
		"--workflow-id", "adhoc",
		"--metadata-id", meta.ID,
		"--queue", "media",
		"--activity", "metadata.attributes.set",
		"--config", "limit=5",
		"--config", "immediate=true",
		"--config", "label=draft",
	)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	var jobs []backend.Job
	if err := json.Unmarshal([]byte(out), &jobs); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(jobs))
	}
	job := jobs[0]
	if job.Queue != "media" || job.ActivityID != "metadata.attributes.set" || job.WorkflowID != "adhoc" {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.Target.MetadataID != meta.ID {
		t.Fatalf("job target = %s, want %s", job.Target, meta.Ref())
	}
	want := map[string]any{"limit": float64(5), "immediate": true, "label": "draft"}
	if !reflect.DeepEqual(job.Configuration, want) {
		t.Fatalf("configuration = %#v, want %#v", job.Configuration, want)
	}

	stored, err := env.store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.Status != backend.JobPending {
		t.Fatalf("expected pending job, got %s", stored.Status)
	}
}

func TestEnqueueUnknownWorkflowFails(t *testing.T) {
	env := setupCLITestEnv(t)
	meta := testsupport.NewMetadata(t, env.store, "a.txt", "text/plain", "a")

	_, _, err := env.run(t, "workflows", "enqueue", "--workflow-id", "missing", "--metadata-id", meta.ID)
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected not found error naming the workflow, got %v", err)
	}
}

func TestTypedValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"FALSE", false},
		{"42", int64(42)},
		{"-3", int64(-3)},
		{"4.5", "4.5"},
		{"hello world", "hello world"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := typedValue(tt.in); got != tt.want {
			t.Fatalf("typedValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
