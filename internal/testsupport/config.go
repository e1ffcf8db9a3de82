package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"weft/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.TempDir = filepath.Join(base, "tmp")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ContentDir = filepath.Join(base, "content")
	cfgVal.Metrics.Listen = "127.0.0.1:0"
	cfgVal.Media.MinFreeGiB = 0
	cfgVal.Workflow.PollIntervalMillis = 1
	cfgVal.Workflow.MaxPollIntervalMillis = 20

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	if err := os.MkdirAll(builder.cfg.Paths.WorkDir, 0o755); err != nil {
		t.Fatalf("mkdir work dir: %v", err)
	}
	return builder.cfg
}

// WithQueues overrides the queue concurrency specification.
func WithQueues(spec string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queues.Spec = spec
	}
}

// WithWorkflow lets a test adjust dispatcher timing and retry settings.
func WithWorkflow(mutate func(*config.Workflow)) ConfigOption {
	return func(b *configBuilder) {
		mutate(&b.cfg.Workflow)
	}
}

// WithStubbedBinaries writes stub executables and prepends them to PATH. Each
// entry maps a binary name to a shell script body; an empty body exits 0.
func WithStubbedBinaries(scripts map[string]string) ConfigOption {
	return func(b *configBuilder) {
		if len(scripts) == 0 {
			scripts = map[string]string{"ffmpeg": "", "ffprobe": ""}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		for name, body := range scripts {
			if body == "" {
				body = "exit 0\n"
			}
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
