package storage_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"weft/internal/config"
	"weft/internal/services"
	"weft/internal/storage"
)

func TestCleanKey(t *testing.T) {
	valid := map[string]string{
		"metadata/a/1/content": "metadata/a/1/content",
		" a//b/./c ":           "a/b/c",
	}
	for in, want := range valid {
		got, err := storage.CleanKey(in)
		if err != nil || got != want {
			t.Fatalf("CleanKey(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "/abs", "../escape", "a/../../b", "..", `a\b`} {
		if _, err := storage.CleanKey(bad); !errors.Is(err, storage.ErrInvalidKey) {
			t.Fatalf("CleanKey(%q) expected ErrInvalidKey, got %v", bad, err)
		}
	}
}

func TestFSRoundTrip(t *testing.T) {
	ctx := context.Background()
	blobs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	key := storage.ContentKey("m1", 1)
	n, err := blobs.Put(ctx, key, strings.NewReader("payload"), "text/plain")
	if err != nil || n != 7 {
		t.Fatalf("Put = %d, %v", n, err)
	}
	rc, err := blobs.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "payload" {
		t.Fatalf("unexpected content %q", data)
	}
	if err := blobs.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := blobs.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
	if _, err := blobs.Open(ctx, key); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.ContentDir = t.TempDir()
	blobs, err := storage.New(context.Background(), &cfg)
	if err != nil || blobs.Kind() != "fs" {
		t.Fatalf("expected fs store, got %v %v", blobs, err)
	}

	cfg.Storage.Kind = config.StorageS3
	cfg.Storage.Bucket = "content"
	cfg.Storage.Endpoint = "http://127.0.0.1:9"
	blobs, err = storage.New(context.Background(), &cfg)
	if err != nil || blobs.Kind() != "s3" {
		t.Fatalf("expected s3 store, got %v %v", blobs, err)
	}

	cfg.Storage.Bucket = ""
	if _, err := storage.New(context.Background(), &cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
