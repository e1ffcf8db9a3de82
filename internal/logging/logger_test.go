package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"weft/internal/config"
	"weft/internal/logging"
	"weft/internal/services"
)

func newFileLogger(t *testing.T, format, level string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	no := false
	logger, err := logging.New(logging.Options{Format: format, Level: level, OutputPaths: []string{path}, Color: &no})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithJobID(context.Background(), "3f2a9c1e-0000-4000-8000-000000000000")
	ctx = services.WithQueue(ctx, "media")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "dispatcher")).Info("job claimed", logging.Int("attempt", 2))
	return path
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestConsoleLoggerWritesSubjectAndFields(t *testing.T) {
	path := newFileLogger(t, "console", "info")
	line := readLog(t, path)
	for _, fragment := range []string{"INFO", "dispatcher: ", "[media/3f2a9c1e]", "job claimed", "attempt=2"} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestJSONLoggerIncludesContextFields(t *testing.T) {
	path := newFileLogger(t, "json", "info")
	line := readLog(t, path)
	for _, fragment := range []string{`"job_id":"3f2a9c1e-0000-4000-8000-000000000000"`, `"queue":"media"`, `"component":"dispatcher"`, `"level":"info"`} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
}

func TestDebugLevelIncludesCaller(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("with caller")
	if line := readLog(t, path); !strings.Contains(line, ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", line)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestNewFromConfigWritesRunLog(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello")
	matches, _ := filepath.Glob(filepath.Join(cfg.Paths.LogDir, logging.LogFilePattern))
	if len(matches) != 1 {
		t.Fatalf("expected one run log, got %v", matches)
	}
}

func TestCleanupOldLogsKeepsActiveAndRecent(t *testing.T) {
	dir := t.TempDir()
	old := logging.RunLogPath(dir, time.Now().AddDate(0, 0, -40))
	recent := logging.RunLogPath(dir, time.Now().Add(-time.Hour))
	active := logging.RunLogPath(dir, time.Now().AddDate(0, 0, -50).Add(time.Minute))
	for _, path := range []string{old, recent, active} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	stale := time.Now().AddDate(0, 0, -40)
	for _, path := range []string{old, active} {
		if err := os.Chtimes(path, stale, stale); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), dir, 30, active)
	if removed != 1 {
		t.Fatalf("expected one file removed, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, path := range []string{recent, active} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to remain: %v", path, err)
		}
	}
}

func TestWarnWithContextFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "retry scheduled", "job_retry",
		logging.String(logging.FieldErrorHint, "inspect the activity output"))
	line := readLog(t, path)
	for _, fragment := range []string{
		`"event_type":"job_retry"`,
		`"error_hint":"inspect the activity output"`,
		`"impact":"operation completed with warnings"`,
	} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
	if strings.Count(line, "error_hint") != 1 {
		t.Fatalf("expected caller hint to replace the default, got %q", line)
	}
}

func TestConsoleQuotesAmbiguousValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quote.log")
	no := false
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{path}, Color: &no})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("stored", logging.String("name", "two words"), logging.String("empty", ""),
		logging.String("plain", "ok"), logging.Duration("took", 1500*time.Microsecond))
	line := readLog(t, path)
	for _, fragment := range []string{`name="two words"`, `empty=""`, "plain=ok", "took=2ms"} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
}
