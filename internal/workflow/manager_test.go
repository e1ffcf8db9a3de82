package workflow_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"weft/internal/activity"
	"weft/internal/backend"
	"weft/internal/config"
	"weft/internal/services"
	"weft/internal/testsupport"
	"weft/internal/transition"
	"weft/internal/workflow"
)

type funcActivity struct {
	id    string
	calls atomic.Int32
	fn    func(ctx context.Context, actx *activity.Context, job *backend.Job) error
}

func (a *funcActivity) ID() string { return a.id }

func (a *funcActivity) Definition() activity.Definition {
	return activity.Definition{ID: a.id, Name: a.id}
}

func (a *funcActivity) Execute(ctx context.Context, actx *activity.Context, job *backend.Job) error {
	a.calls.Add(1)
	if a.fn == nil {
		return nil
	}
	return a.fn(ctx, actx, job)
}

type harness struct {
	cfg     *config.Config
	backend *testsupport.FakeBackend
	manager *workflow.Manager
	target  backend.ContentRef
}

func newHarness(t *testing.T, act activity.Activity, opts ...workflow.Option) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithWorkflow(func(w *config.Workflow) {
		w.RetryBackoff = 0
		w.MaxAttempts = 3
		w.TransitionRetries = 1
	}))
	fake := testsupport.NewFakeBackend(t, cfg)
	testsupport.MustDefine(t, fake,
		backend.Definition{Category: backend.CategoryStates, Key: "ingested", Name: "Ingested", Body: map[string]any{
			"activity": map[string]any{
				"id":            "ingest",
				"configuration": map[string]any{"next_state": "published", "immediate": true},
			},
		}},
		backend.Definition{Category: backend.CategoryStates, Key: "published", Name: "Published"},
		backend.Definition{Category: backend.CategoryStates, Key: "reviewed", Name: "Reviewed"},
		backend.Definition{Category: backend.CategoryStates, Key: "failure", Name: "Failure", Body: map[string]any{"error": true}},
		backend.Definition{Category: backend.CategoryWorkflows, Key: "wf", Name: "wf", Body: map[string]any{"initial_state": "ingested"}},
	)

	registry := activity.NewRegistry()
	if act != nil {
		if err := registry.Register(act); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	transitions := transition.New(fake, cfg, transition.WithRetryInterval(time.Millisecond))
	manager, err := workflow.New(cfg, fake, registry, transitions, opts...)
	if err != nil {
		t.Fatalf("workflow.New: %v", err)
	}
	meta := testsupport.NewMetadata(t, fake, "clip.mp4", "video/mp4", "frames")
	return &harness{cfg: cfg, backend: fake, manager: manager, target: meta.Ref()}
}

func (h *harness) enqueue(t *testing.T) {
	t.Helper()
	if _, err := h.backend.EnqueueWorkflow(context.Background(), "wf", h.target); err != nil {
		t.Fatalf("EnqueueWorkflow: %v", err)
	}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.manager.Stop)
}

func (h *harness) job(t *testing.T) *backend.Job {
	t.Helper()
	jobs, err := h.backend.ListJobs(context.Background(), backend.JobFilter{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(jobs))
	}
	return jobs[0]
}

func (h *harness) state(t *testing.T) string {
	t.Helper()
	meta, err := h.backend.GetMetadata(context.Background(), h.target.MetadataID, 0)
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	return meta.WorkflowState
}

func (h *harness) waitForStatus(t *testing.T, status backend.JobStatus) *backend.Job {
	t.Helper()
	var job *backend.Job
	waitFor(t, func() bool {
		job = h.job(t)
		return job.Status == status
	})
	return job
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestNewBuildsOnePoolPerQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithQueues("media,2;default,10"))
	fake := testsupport.NewFakeBackend(t, cfg)

	manager, err := workflow.New(cfg, fake, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := []workflow.Pool{{Queue: "media", Concurrency: 2}, {Queue: "default", Concurrency: 10}}
	if got := manager.Pools(); !reflect.DeepEqual(got, want) {
		t.Fatalf("pools = %+v, want %+v", got, want)
	}
}

func TestNewRejectsMalformedQueueSpec(t *testing.T) {
	for _, spec := range []string{"media,0", "media", "media,x;default,1", ""} {
		t.Run(spec, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, testsupport.WithQueues(spec))
			fake := testsupport.NewFakeBackend(t, cfg)

			manager, err := workflow.New(cfg, fake, nil, nil)
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if manager != nil {
				t.Fatal("expected no manager for malformed spec")
			}
		})
	}
}

func TestSuccessfulJobCompletesBeforeSettingState(t *testing.T) {
	act := &funcActivity{id: "ingest"}
	h := newHarness(t, act)
	h.enqueue(t)
	h.start(t)

	job := h.waitForStatus(t, backend.JobComplete)
	if job.Attempts != 1 {
		t.Fatalf("expected one attempt, got %d", job.Attempts)
	}
	want := []string{"CompleteCurrentState", "SetState", "CompleteJob"}
	if got := h.backend.Methods(want...); !reflect.DeepEqual(got, want) {
		t.Fatalf("call order = %v, want %v", got, want)
	}
	if got := h.state(t); got != "published" {
		t.Fatalf("expected published, got %q", got)
	}
}

func TestNonRetriableFailureFailsOnFirstAttempt(t *testing.T) {
	act := &funcActivity{id: "ingest", fn: func(context.Context, *activity.Context, *backend.Job) error {
		return services.Wrap(services.ErrValidation, "ingest", "inspect", "unsupported container", nil)
	}}
	h := newHarness(t, act)
	h.enqueue(t)
	h.start(t)

	job := h.waitForStatus(t, backend.JobFailed)
	if job.Attempts != 1 || job.MaxAttempts != 3 {
		t.Fatalf("expected failure on attempt 1 of 3, got %d of %d", job.Attempts, job.MaxAttempts)
	}
	if n := h.backend.Count("RetryJob"); n != 0 {
		t.Fatalf("expected no retries, got %d", n)
	}
	if n := h.backend.Count("FailJob"); n != 1 {
		t.Fatalf("expected one FailJob, got %d", n)
	}
	if got := h.state(t); got != "failure" {
		t.Fatalf("expected failure state, got %q", got)
	}
}

func TestExhaustedRetriesFailExactlyOnce(t *testing.T) {
	act := &funcActivity{id: "ingest", fn: func(context.Context, *activity.Context, *backend.Job) error {
		return services.Wrap(services.ErrExternalTool, "ingest", "ffprobe", "exit status 1", nil)
	}}
	h := newHarness(t, act)
	h.enqueue(t)
	h.start(t)

	job := h.waitForStatus(t, backend.JobFailed)
	if job.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", job.Attempts)
	}
	if n := act.calls.Load(); n != 3 {
		t.Fatalf("expected 3 executions, got %d", n)
	}
	if got := h.backend.Methods("RetryJob", "FailJob"); !reflect.DeepEqual(got, []string{"RetryJob", "RetryJob", "FailJob"}) {
		t.Fatalf("unexpected settle calls %v", got)
	}
	if got := h.state(t); got != "failure" {
		t.Fatalf("expected failure state, got %q", got)
	}
}

func TestSetStateFailureResumesWithoutRerunningActivity(t *testing.T) {
	act := &funcActivity{id: "ingest"}
	h := newHarness(t, act)
	busy := errors.New("database is locked")
	h.backend.FailNext("SetState", busy, busy)
	h.enqueue(t)
	h.start(t)

	job := h.waitForStatus(t, backend.JobComplete)
	if job.Attempts != 2 {
		t.Fatalf("expected second attempt to finish, got %d", job.Attempts)
	}
	if n := act.calls.Load(); n != 1 {
		t.Fatalf("activity ran %d times, want 1", n)
	}
	if n := h.backend.Count("CompleteCurrentState"); n != 1 {
		t.Fatalf("CompleteCurrentState called %d times, want 1", n)
	}
	if got := h.state(t); got != "published" {
		t.Fatalf("expected published, got %q", got)
	}
}

func TestComputedStateSurvivesSetStateFailure(t *testing.T) {
	act := &funcActivity{id: "ingest", fn: func(_ context.Context, c *activity.Context, _ *backend.Job) error {
		c.SetNextState("reviewed", false)
		return nil
	}}
	h := newHarness(t, act)
	busy := errors.New("database is locked")
	h.backend.FailNext("SetState", busy, busy)
	h.enqueue(t)
	h.start(t)

	job := h.waitForStatus(t, backend.JobComplete)
	if job.Attempts != 2 {
		t.Fatalf("expected second attempt to finish, got %d", job.Attempts)
	}
	if n := act.calls.Load(); n != 1 {
		t.Fatalf("activity ran %d times, want 1", n)
	}
	var targets []string
	for _, call := range h.backend.Calls() {
		if call.Method == "SetState" {
			targets = append(targets, call.State)
		}
	}
	if want := []string{"reviewed", "reviewed", "reviewed"}; !reflect.DeepEqual(targets, want) {
		t.Fatalf("SetState targets = %v, want %v", targets, want)
	}
	if got := h.state(t); got != "reviewed" {
		t.Fatalf("expected reviewed, got %q", got)
	}
}

func TestErrorStateFailureDefersDeadLetter(t *testing.T) {
	act := &funcActivity{id: "ingest", fn: func(context.Context, *activity.Context, *backend.Job) error {
		return services.Wrap(services.ErrPermanent, "ingest", "decode", "corrupt header", nil)
	}}
	h := newHarness(t, act)
	busy := errors.New("database is locked")
	h.backend.FailNext("SetState", busy, busy, busy)
	h.enqueue(t)
	h.start(t)

	job := h.waitForStatus(t, backend.JobFailed)
	if got := h.state(t); got != "failure" {
		t.Fatalf("expected failure state before dead letter, got %q", got)
	}
	if n := act.calls.Load(); n != 1 {
		t.Fatalf("activity ran %d times, want 1", n)
	}
	if job.Attempts != 2 {
		t.Fatalf("expected error state entry on the second attempt, got %d", job.Attempts)
	}
	want := []string{"SetJobPhase", "RetryJob", "FailJob"}
	if got := h.backend.Methods("SetJobPhase", "RetryJob", "FailJob"); !reflect.DeepEqual(got, want) {
		t.Fatalf("settle calls = %v, want %v", got, want)
	}
	for _, call := range h.backend.Calls() {
		if call.Method == "SetJobPhase" && call.Phase != backend.PhaseFailing {
			t.Fatalf("expected failing phase, got %q", call.Phase)
		}
	}
	if !strings.Contains(job.LastError, "corrupt header") {
		t.Fatalf("expected original failure recorded, got %q", job.LastError)
	}
}

func TestRejectedErrorStateStillDeadLetters(t *testing.T) {
	act := &funcActivity{id: "ingest", fn: func(context.Context, *activity.Context, *backend.Job) error {
		return services.Wrap(services.ErrPermanent, "ingest", "decode", "corrupt header", nil)
	}}
	h := newHarness(t, act)
	h.backend.FailNext("SetState", services.Wrap(services.ErrValidation, "store", "set state", "no transition", nil))
	h.enqueue(t)
	h.start(t)

	job := h.waitForStatus(t, backend.JobFailed)
	if job.Attempts != 1 || h.backend.Count("RetryJob") != 0 {
		t.Fatalf("expected dead letter on first attempt, got attempts=%d retries=%d", job.Attempts, h.backend.Count("RetryJob"))
	}
	if !strings.Contains(job.LastError, "corrupt header") || !strings.Contains(job.LastError, "error state not entered") {
		t.Fatalf("expected both failures recorded, got %q", job.LastError)
	}
}

func TestPanicIsRetried(t *testing.T) {
	var once sync.Once
	act := &funcActivity{id: "ingest", fn: func(context.Context, *activity.Context, *backend.Job) error {
		panicked := false
		once.Do(func() { panicked = true })
		if panicked {
			panic("nil frame")
		}
		return nil
	}}
	h := newHarness(t, act)
	h.enqueue(t)
	h.start(t)

	job := h.waitForStatus(t, backend.JobComplete)
	if job.Attempts != 2 {
		t.Fatalf("expected completion on attempt 2, got %d", job.Attempts)
	}
	if n := h.backend.Count("RetryJob"); n != 1 {
		t.Fatalf("expected one retry, got %d", n)
	}
}

func TestMissingActivityFailsPermanently(t *testing.T) {
	h := newHarness(t, nil)
	h.enqueue(t)
	h.start(t)

	job := h.waitForStatus(t, backend.JobFailed)
	if job.Attempts != 1 {
		t.Fatalf("expected failure on first attempt, got %d", job.Attempts)
	}
}

func TestContextReleasedBeforeSettle(t *testing.T) {
	var actx atomic.Pointer[activity.Context]
	act := &funcActivity{id: "ingest", fn: func(_ context.Context, c *activity.Context, _ *backend.Job) error {
		actx.Store(c)
		if _, err := c.CreateTempDir("frames-*"); err != nil {
			return err
		}
		return nil
	}}
	h := newHarness(t, act)
	h.enqueue(t)
	h.start(t)

	h.waitForStatus(t, backend.JobComplete)
	if c := actx.Load(); c == nil || !c.Released() {
		t.Fatal("expected activity context to be released")
	}
}

func TestStopDrainsInFlightJobs(t *testing.T) {
	started := make(chan struct{})
	finish := make(chan struct{})
	act := &funcActivity{id: "ingest", fn: func(context.Context, *activity.Context, *backend.Job) error {
		close(started)
		<-finish
		return nil
	}}
	h := newHarness(t, act, workflow.WithDrainTimeout(5*time.Second))
	h.enqueue(t)
	h.start(t)
	<-started

	stopped := make(chan struct{})
	go func() {
		h.manager.Stop()
		close(stopped)
	}()
	waitFor(t, func() bool { return !h.manager.Healthy() })
	close(finish)
	<-stopped

	if job := h.job(t); job.Status != backend.JobComplete {
		t.Fatalf("expected drained job to complete, got %s", job.Status)
	}
}

func TestStopReleasesInterruptedJobs(t *testing.T) {
	started := make(chan struct{})
	act := &funcActivity{id: "ingest", fn: func(ctx context.Context, _ *activity.Context, _ *backend.Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}
	h := newHarness(t, act, workflow.WithDrainTimeout(10*time.Millisecond))
	h.enqueue(t)
	h.start(t)
	<-started

	h.manager.Stop()

	job := h.job(t)
	if job.Status != backend.JobPending || job.Attempts != 0 {
		t.Fatalf("expected released job with uncounted attempt, got %s attempts=%d", job.Status, job.Attempts)
	}
	if n := h.backend.Count("ReleaseJob"); n != 1 {
		t.Fatalf("expected one ReleaseJob, got %d", n)
	}
	if n := h.backend.Count("FailJob") + h.backend.Count("RetryJob"); n != 0 {
		t.Fatalf("interrupted job must not be failed or retried, got %d calls", n)
	}
}

func TestStatusReportsPoolsAndStats(t *testing.T) {
	h := newHarness(t, &funcActivity{id: "ingest"})
	h.enqueue(t)

	status := h.manager.Status(context.Background())
	if status.Running {
		t.Fatal("expected stopped manager")
	}
	if got := status.QueueStats[backend.DefaultQueue][backend.JobPending]; got != 1 {
		t.Fatalf("expected one pending job, got %d", got)
	}
	if len(status.Pools) != 1 {
		t.Fatalf("unexpected pools %+v", status.Pools)
	}
}
