package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"weft/internal/config"
	"weft/internal/services"
	"weft/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	results := CheckBinaries([]Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary", Optional: true},
		{Name: "Unset"},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Passed {
		t.Fatalf("expected present binary to pass, got %#v", results[0])
	}
	if results[1].Passed || results[1].Detail == "" {
		t.Fatalf("expected missing binary to fail with detail, got %#v", results[1])
	}
	if failed := Failed(results); len(failed) != 1 || failed[0].Name != "Unset" {
		t.Fatalf("expected only the required unset binary to count as failed, got %#v", failed)
	}
}

func TestEnsureFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if err := EnsureFreeSpace(dir, 0); err != nil {
		t.Fatalf("expected no check when threshold is zero, got %v", err)
	}
	if err := EnsureFreeSpace(dir, 1<<20); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error for impossible threshold, got %v", err)
	}
	if _, err := FreeBytes(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected statfs error for missing path")
	}
}

func TestCheckHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tests := []struct {
		name  string
		url   string
		token string
		pass  bool
	}{
		{name: "ok", url: srv.URL, token: "good", pass: true},
		{name: "bad token", url: srv.URL, token: "bad"},
		{name: "missing url", url: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckHTTP(context.Background(), "remote", tt.url, tt.token)
			if result.Passed != tt.pass {
				t.Fatalf("expected passed=%v, got %#v", tt.pass, result)
			}
		})
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries(nil))
	cfg.LLM.APIKey = ""
	cfg.Backend.Kind = config.BackendLocal

	results := RunAll(context.Background(), cfg)
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("expected all required checks to pass, got %#v", failed)
	}
	for _, r := range results {
		if r.Name == "LLM" || r.Name == "Remote backend" {
			t.Fatalf("unconfigured service %q should be skipped", r.Name)
		}
	}
}
