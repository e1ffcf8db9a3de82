package daemon_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"weft/internal/activity"
	"weft/internal/daemon"
	"weft/internal/metrics"
	"weft/internal/testsupport"
	"weft/internal/transition"
	"weft/internal/workflow"
)

func newDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithQueues("default,1"))
	st := testsupport.MustOpenStore(t, cfg)
	collector := metrics.New()
	mgr, err := workflow.New(cfg, st, activity.NewRegistry(), transition.New(st, cfg), workflow.WithMetrics(collector))
	if err != nil {
		t.Fatalf("workflow.New: %v", err)
	}
	d, err := daemon.New(cfg, st, mgr, collector, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestDaemonServesHealthAndHoldsLock(t *testing.T) {
	d := newDaemon(t)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	status := d.Status(ctx)
	if !status.Running || status.MetricsAddr == "" || !status.Workflow.Running {
		t.Fatalf("unexpected status %+v", status)
	}
	resp, err := http.Get("http://" + status.MetricsAddr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz = %d %q", resp.StatusCode, body)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("second Start on a running daemon must fail")
	}
}

func TestSecondDaemonIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithQueues("default,1"))
	build := func() *daemon.Daemon {
		st := testsupport.MustOpenStore(t, cfg)
		mgr, err := workflow.New(cfg, st, nil, nil)
		if err != nil {
			t.Fatalf("workflow.New: %v", err)
		}
		d, err := daemon.New(cfg, st, mgr, nil, nil)
		if err != nil {
			t.Fatalf("daemon.New: %v", err)
		}
		return d
	}

	first := build()
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	second := build()
	if err := second.Start(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("Start after release: %v", err)
	}
	second.Stop()
}
