package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"weft/internal/backend"
	"weft/internal/config"
	"weft/internal/store"
)

// Call is one recorded backend mutation.
type Call struct {
	Method    string
	JobID     string
	Target    backend.ContentRef
	State     string
	Status    string
	Phase     backend.Phase
	Reason    string
	Immediate bool
}

// FakeBackend is a store-backed backend.Client that records the order of
// job and workflow mutations and can inject failures per method.
type FakeBackend struct {
	*store.Store

	mu       sync.Mutex
	calls    []Call
	failures map[string][]error
}

var _ backend.Client = (*FakeBackend)(nil)

// NewFakeBackend opens a fresh store for cfg and wraps it.
func NewFakeBackend(t testing.TB, cfg *config.Config, opts ...store.Option) *FakeBackend {
	t.Helper()
	return &FakeBackend{
		Store:    MustOpenStore(t, cfg, opts...),
		failures: make(map[string][]error),
	}
}

// FailNext queues errors returned by the next calls to method, in order.
func (f *FakeBackend) FailNext(method string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = append(f.failures[method], errs...)
}

// Calls returns a copy of the recorded calls.
func (f *FakeBackend) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Methods returns recorded method names in call order, optionally filtered.
func (f *FakeBackend) Methods(only ...string) []string {
	keep := make(map[string]bool, len(only))
	for _, m := range only {
		keep[m] = true
	}
	var out []string
	for _, call := range f.Calls() {
		if len(keep) == 0 || keep[call.Method] {
			out = append(out, call.Method)
		}
	}
	return out
}

// Count reports how many times method was called.
func (f *FakeBackend) Count(method string) int {
	return len(f.Methods(method))
}

func (f *FakeBackend) record(call Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if queued := f.failures[call.Method]; len(queued) > 0 {
		f.failures[call.Method] = queued[1:]
		return queued[0]
	}
	return nil
}

func (f *FakeBackend) SetJobPhase(ctx context.Context, jobID, owner string, progress backend.Progress) error {
	call := Call{Method: "SetJobPhase", JobID: jobID, Phase: progress.Phase, State: progress.NextState, Immediate: progress.Immediate}
	if err := f.record(call); err != nil {
		return err
	}
	return f.Store.SetJobPhase(ctx, jobID, owner, progress)
}

func (f *FakeBackend) CompleteJob(ctx context.Context, jobID, owner string) error {
	if err := f.record(Call{Method: "CompleteJob", JobID: jobID}); err != nil {
		return err
	}
	return f.Store.CompleteJob(ctx, jobID, owner)
}

func (f *FakeBackend) RetryJob(ctx context.Context, jobID, owner string, availableAt time.Time, reason string) error {
	if err := f.record(Call{Method: "RetryJob", JobID: jobID, Reason: reason}); err != nil {
		return err
	}
	return f.Store.RetryJob(ctx, jobID, owner, availableAt, reason)
}

func (f *FakeBackend) FailJob(ctx context.Context, jobID, owner, reason string) error {
	if err := f.record(Call{Method: "FailJob", JobID: jobID, Reason: reason}); err != nil {
		return err
	}
	return f.Store.FailJob(ctx, jobID, owner, reason)
}

func (f *FakeBackend) ReleaseJob(ctx context.Context, jobID, owner string) error {
	if err := f.record(Call{Method: "ReleaseJob", JobID: jobID}); err != nil {
		return err
	}
	return f.Store.ReleaseJob(ctx, jobID, owner)
}

func (f *FakeBackend) CompleteCurrentState(ctx context.Context, ref backend.ContentRef, status string) error {
	if err := f.record(Call{Method: "CompleteCurrentState", Target: ref, Status: status}); err != nil {
		return err
	}
	return f.Store.CompleteCurrentState(ctx, ref, status)
}

func (f *FakeBackend) SetState(ctx context.Context, ref backend.ContentRef, stateID, status string, immediate bool) error {
	if err := f.record(Call{Method: "SetState", Target: ref, State: stateID, Status: status, Immediate: immediate}); err != nil {
		return err
	}
	return f.Store.SetState(ctx, ref, stateID, status, immediate)
}
