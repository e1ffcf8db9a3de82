// Package daemonrun assembles and runs the weft dispatcher process.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"weft/internal/config"
	"weft/internal/daemon"
	"weft/internal/logging"
	"weft/internal/logs"
	"weft/internal/metrics"
	"weft/internal/queueaccess"
	"weft/internal/services/llm"
	"weft/internal/services/vectorstore"
	"weft/internal/transition"
	"weft/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the dispatcher and blocks until SIGINT/SIGTERM or ctx
// cancellation, then drains in-flight jobs.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logPath := logging.RunLogPath(cfg.Paths.LogDir, time.Now())
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update weft.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, logPath)
	logDependencySnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.StateDir, "weftd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	client, err := queueaccess.Open(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("open backend", logging.Error(err))
		return err
	}

	svc, closeServices := OpenServices(signalCtx, cfg, logger)
	defer closeServices()

	registry, _, err := BuildRegistry(signalCtx, cfg, client, svc)
	if err != nil {
		_ = client.Close()
		return err
	}
	collector := metrics.New()
	transitions := transition.New(client, cfg, transition.WithLogger(logger))
	manager, err := workflow.New(cfg, client, registry, transitions,
		workflow.WithLogger(logger),
		workflow.WithMetrics(collector),
	)
	if err != nil {
		_ = client.Close()
		return err
	}

	d, err := daemon.New(cfg, client, manager, collector, logger)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration, the queue spec, and the daemon lock"),
			logging.String(logging.FieldImpact, "no jobs will be processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("weft dispatcher shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	d.Stop()
	return nil
}

// OpenServices connects the optional LLM and vector store clients. Failures
// are logged and leave the dependent activities unhealthy rather than
// preventing startup.
func OpenServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Services, func()) {
	var svc Services
	if strings.TrimSpace(cfg.LLM.APIKey) != "" {
		svc.LLM = llm.NewClient(llm.FromConfig(cfg), llm.WithLogger(logging.NewComponentLogger(logger, "llm")))
	}
	if strings.TrimSpace(cfg.Vector.DSN) == "" {
		return svc, func() {}
	}
	store, err := vectorstore.Open(ctx, cfg.Vector)
	if err == nil {
		err = store.EnsureSchema(ctx)
		if err != nil {
			store.Close()
		}
	}
	if err != nil {
		logging.WarnWithContext(logger, "vector store unavailable", "vector_store_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check vector.dsn and that the pgvector extension is installed"),
			logging.String(logging.FieldImpact, "ai.embeddings.generate jobs will fail"),
		)
		return svc, func() {}
	}
	svc.Vectors = store
	return svc, store.Close
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := logs.CurrentPath(logDir)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("backend", cfg.Backend.Kind),
		logging.String("storage", cfg.Storage.Kind),
		logging.String("queues", cfg.Queues.Spec),
		logging.Bool("ffmpeg_available", binaryAvailable(cfg.Media.FFmpegBinary)),
		logging.String("ffmpeg_binary", cfg.Media.FFmpegBinary),
		logging.Bool("ffprobe_available", binaryAvailable(cfg.Media.FFprobeBinary)),
		logging.String("ffprobe_binary", cfg.Media.FFprobeBinary),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.Bool("vector_store_configured", strings.TrimSpace(cfg.Vector.DSN) != ""),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
