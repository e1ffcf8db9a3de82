// Package storage persists content blobs for the local content backend on
// the filesystem or in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"weft/internal/config"
	"weft/internal/services"
)

// Blobs stores opaque content by key. Keys are slash-separated and relative.
type Blobs interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Kind() string
}

// ErrInvalidKey rejects keys that would escape the storage root.
var ErrInvalidKey = errors.New("invalid blob key")

// New builds the blob store selected by cfg.Storage.Kind.
func New(ctx context.Context, cfg *config.Config) (Blobs, error) {
	switch cfg.Storage.Kind {
	case config.StorageFS, "":
		return NewFS(cfg.Paths.ContentDir)
	case config.StorageS3:
		return NewS3(ctx, S3Options{
			Bucket:    cfg.Storage.Bucket,
			Prefix:    cfg.Storage.Prefix,
			Region:    cfg.Storage.Region,
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			PathStyle: cfg.Storage.PathStyle,
			TempDir:   cfg.Paths.TempDir,
		})
	default:
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init", fmt.Sprintf("unsupported kind %q", cfg.Storage.Kind), nil)
	}
}

// CleanKey normalizes a key and rejects absolute or parent-escaping values.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.HasPrefix(trimmed, "/") || strings.Contains(trimmed, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// ContentKey is the blob key of a metadata version's primary content.
func ContentKey(metadataID string, version int) string {
	return fmt.Sprintf("metadata/%s/%d/content", metadataID, version)
}

// SupplementaryKey is the blob key of supplementary content owned by owner.
func SupplementaryKey(owner, key string) string {
	return fmt.Sprintf("supplementary/%s/%s", owner, key)
}
