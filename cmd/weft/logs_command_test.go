package main

import (
	"os"
	"strings"
	"testing"

	"weft/internal/logs"
)

func TestLogsShowsTrailingLinesForJob(t *testing.T) {
	env := setupCLITestEnv(t)
	content := `{"msg":"claimed","job_id":"a1"}
{"msg":"claimed","job_id":"b2"}
{"msg":"completed","job_id":"a1"}
`
	if err := os.WriteFile(logs.CurrentPath(env.cfg.Paths.LogDir), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := env.run(t, "logs", "-n", "2")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if got := strings.Count(out, "\n"); got != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", got, out)
	}

	out, _, err = env.run(t, "logs", "--job", "a1")
	if err != nil {
		t.Fatalf("logs --job: %v", err)
	}
	requireContains(t, out, "completed")
	if strings.Contains(out, "b2") {
		t.Fatalf("job filter leaked other jobs: %q", out)
	}
}
