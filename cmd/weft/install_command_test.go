package main

import (
	"context"
	"path/filepath"
	"testing"

	"weft/internal/backend"
	"weft/internal/testsupport"
)

const cliStatesYAML = `
- key: ingested
  name: Ingested
  activity:
    id: metadata.attributes.set
    queue: media
    configuration:
      attributes:
        stage: ingested
- key: done
  name: Done
`

const cliTransitionsYAML = `
- key: ingested-done
  from: ingested
  to: done
`

const cliWorkflowsYAML = `
- key: tagging
  name: Tagging
  initial_state: ingested
`

func TestInstallThenEnqueueWorkflow(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := filepath.Join(env.baseDir, "defs")
	testsupport.WriteYAML(t, dir, "states", cliStatesYAML)
	testsupport.WriteYAML(t, dir, "transitions", cliTransitionsYAML)
	testsupport.WriteYAML(t, dir, "workflows", cliWorkflowsYAML)

	out, _, err := env.run(t, "install", "--dir", dir)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	requireContains(t, out, "ingested-done")
	requireContains(t, out, "0 updated, 0 unchanged")

	out, _, err = env.run(t, "install", "--dir", dir)
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	requireContains(t, out, "0 created, 0 updated")

	def, err := env.store.FindDefinition(context.Background(), backend.CategoryActivities, "ai.prompt.execute")
	if err != nil || def == nil {
		t.Fatalf("expected installed activity definition, got %+v, %v", def, err)
	}

	meta := testsupport.NewMetadata(t, env.store, "clip.txt", "text/plain", "clip")
	out, _, err = env.run(t, "workflows", "enqueue", "--workflow-id", "tagging", "--metadata-id", meta.ID)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	requireContains(t, out, "metadata.attributes.set")
	requireContains(t, out, "Enqueued 1 job(s)")

	jobs, err := env.store.ListJobs(context.Background(), backend.JobFilter{Queue: "media"})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].WorkflowID != "tagging" {
		t.Fatalf("expected one tagging job on media, got %+v", jobs)
	}
}

func TestInstallRejectsDanglingReference(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := filepath.Join(env.baseDir, "defs")
	testsupport.WriteYAML(t, dir, "transitions", cliTransitionsYAML)

	if _, _, err := env.run(t, "install", "--dir", dir); err == nil {
		t.Fatal("expected install to fail when transitions name unknown states")
	}
}
