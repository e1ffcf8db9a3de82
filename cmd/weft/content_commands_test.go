package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"weft/internal/backend"
	"weft/internal/testsupport"
)

func TestContentAddAndSearch(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	path := filepath.Join(env.baseDir, "report.txt")
	if err := os.WriteFile(path, []byte("quarterly river survey"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	out, _, err := env.run(t, "content", "add", path, "--attr", "region=north")
	if err != nil {
		t.Fatalf("content add: %v", err)
	}
	requireContains(t, out, "Created metadata:")
	requireContains(t, out, "text/plain")

	meta := testsupport.NewMetadata(t, env.store, "otter.txt", "text/plain", "otters in the river")
	err = env.store.IndexDocument(ctx, backend.SearchDocument{
		Target:     meta.Ref(),
		Title:      "Otter sighting",
		Body:       "otters in the river delta",
		Attributes: map[string]any{"region": "south"},
	})
	if err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}

	out, _, err = env.run(t, "content", "search", "--query", "otters")
	if err != nil {
		t.Fatalf("content search: %v", err)
	}
	requireContains(t, out, "Otter sighting")

	out, _, err = env.run(t, "content", "search", "--query", "otters", "--filter", "region=north")
	if err != nil {
		t.Fatalf("content search with filter: %v", err)
	}
	requireContains(t, out, "No matches")
}

func TestContentSearchValidatesFlags(t *testing.T) {
	env := setupCLITestEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing query", []string{"content", "search"}, "--query is required"},
		{"bad limit", []string{"content", "search", "-q", "x", "--limit", "0"}, "--limit must be positive"},
		{"semantic filter", []string{"content", "search", "-q", "x", "--semantic", "--filter", "a=b"}, "not supported"},
		{"semantic without llm", []string{"content", "search", "-q", "x", "--semantic"}, "llm.api_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.run(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("  line one\nline two  ", 80); got != "line one line two" {
		t.Fatalf("truncate collapsed whitespace to %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("truncate = %q", got)
	}
}
