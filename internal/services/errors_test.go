package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"weft/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "thumbnails", "ffmpeg", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"thumbnails", "ffmpeg", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected default detail, got %q", err.Error())
	}
}

func TestRetriableClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"configuration", services.Wrap(services.ErrConfiguration, "activity", "decode", "missing state", nil), false},
		{"validation", services.Wrap(services.ErrValidation, "installer", "states", "bad key", nil), false},
		{"not found", fmt.Errorf("lookup: %w", services.ErrNotFound), false},
		{"permanent", services.Wrap(services.ErrPermanent, "thumbnails", "probe", "no video stream", nil), false},
		{"transient", services.Wrap(services.ErrTransient, "backend", "claim", "timeout", errors.New("io")), true},
		{"external tool", services.Wrap(services.ErrExternalTool, "ffmpeg", "run", "exit 1", nil), true},
		{"unclassified", errors.New("network down"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.Retriable(tt.err); got != tt.want {
				t.Fatalf("Retriable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestInterruptedAndClassification(t *testing.T) {
	if !services.Interrupted(fmt.Errorf("run: %w", context.Canceled)) {
		t.Fatal("expected canceled context to count as interrupted")
	}
	if services.Interrupted(errors.New("boom")) {
		t.Fatal("expected plain error not to count as interrupted")
	}
	if got := services.Classification(services.Wrap(services.ErrPermanent, "", "", "x", nil)); got != "permanent" {
		t.Fatalf("unexpected classification %q", got)
	}
	if got := services.Classification(context.DeadlineExceeded); got != "timeout" {
		t.Fatalf("unexpected classification %q", got)
	}
}

func TestMarkerForRoundTrip(t *testing.T) {
	markers := []error{
		services.ErrConfiguration,
		services.ErrValidation,
		services.ErrNotFound,
		services.ErrPermanent,
		services.ErrLeaseLost,
		services.ErrExternalTool,
		services.ErrTimeout,
	}
	for _, marker := range markers {
		kind := services.Classification(services.Wrap(marker, "remote", "op", "", nil))
		if got := services.MarkerFor(kind); got != marker {
			t.Fatalf("MarkerFor(%q) = %v, want %v", kind, got, marker)
		}
	}
	if got := services.MarkerFor("something-new"); got != services.ErrTransient {
		t.Fatalf("unknown kind should map to transient, got %v", got)
	}
}
