// Package queueaccess opens the content backend a process should use: the
// local SQLite store over filesystem or S3 blobs, or a remote weft API.
package queueaccess

import (
	"context"
	"fmt"
	"log/slog"

	"weft/internal/backend"
	"weft/internal/backend/remote"
	"weft/internal/config"
	"weft/internal/logging"
	"weft/internal/services"
	"weft/internal/storage"
	"weft/internal/store"
)

// Open returns the backend selected by cfg.Backend.Kind.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backend.Client, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "queueaccess", "open", "config is required", nil)
	}
	switch cfg.Backend.Kind {
	case config.BackendRemote:
		client, err := remote.New(cfg.Backend, remote.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if logger != nil {
			logger.Info("using remote backend", logging.String("url", cfg.Backend.URL))
		}
		return client, nil
	case config.BackendLocal, "":
		return OpenLocal(ctx, cfg, logger)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "queueaccess", "open",
			fmt.Sprintf("unsupported backend kind %q", cfg.Backend.Kind), nil)
	}
}

// OpenLocal opens the SQLite store regardless of cfg.Backend.Kind; the API
// server always serves local state.
func OpenLocal(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	blobs, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg, blobs)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("using local backend",
			logging.String("database", cfg.DatabasePath()),
			logging.String("storage", blobs.Kind()))
	}
	return st, nil
}
