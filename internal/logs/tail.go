package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CurrentName is the pointer the dispatcher keeps at its active run log.
const CurrentName = "weft.log"

const (
	maxLineBytes = 1024 * 1024
	pollInterval = 250 * time.Millisecond
)

// CurrentPath returns the active run log pointer inside logDir.
func CurrentPath(logDir string) string {
	return filepath.Join(logDir, CurrentName)
}

// TailOptions controls a single Tail call. A negative Offset reads the last
// Limit lines; otherwise reading resumes at Offset.
type TailOptions struct {
	Offset int64
	Limit  int
	// Follow waits up to Wait for new lines when none are available.
	Follow bool
	Wait   time.Duration
	// JobID keeps only lines that carry this job_id field.
	JobID string
}

// TailResult holds the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from path. A missing file yields no lines and offset 0 so
// callers can keep polling until the dispatcher creates it.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	var result TailResult
	if opts.Offset < 0 {
		keep := opts.Limit
		if keep <= 0 {
			keep = -1
		}
		result, err = scan(path, 0, keep, opts.JobID)
	} else {
		start := opts.Offset
		if start > info.Size() {
			// Truncated or rotated underneath us.
			start = 0
		}
		result, err = scan(path, start, 0, opts.JobID)
	}
	if err != nil {
		return result, err
	}
	if len(result.Lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return result, nil
	}
	return waitForLines(ctx, path, result.Offset, opts)
}

// scan reads from offset to EOF. keep > 0 retains only the last keep lines,
// keep < 0 retains none, and keep == 0 retains everything.
func scan(path string, offset int64, keep int, jobID string) (TailResult, error) {
	result := TailResult{Offset: offset}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return result, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return result, fmt.Errorf("seek log file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if keep < 0 || (jobID != "" && !MatchJob(line, jobID)) {
			continue
		}
		lines = append(lines, line)
		if keep > 0 && len(lines) > keep {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("read log file: %w", err)
	}
	end, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return result, fmt.Errorf("determine log offset: %w", err)
	}
	result.Lines = lines
	result.Offset = end
	return result, nil
}

func waitForLines(ctx context.Context, path string, offset int64, opts TailOptions) (TailResult, error) {
	deadline := time.Now().Add(opts.Wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
		next, err := scan(path, result.Offset, 0, opts.JobID)
		if err != nil {
			return result, err
		}
		result = next
		if len(result.Lines) > 0 || time.Now().After(deadline) {
			return result, nil
		}
	}
}

// MatchJob reports whether a log line belongs to jobID. JSON lines are
// matched on their job_id field; console lines on the job_id=<id> pair.
func MatchJob(line, jobID string) bool {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") {
		var entry struct {
			JobID string `json:"job_id"`
		}
		if err := json.Unmarshal([]byte(trimmed), &entry); err == nil {
			return entry.JobID == jobID
		}
	}
	for _, field := range strings.Fields(trimmed) {
		if value, ok := strings.CutPrefix(field, "job_id="); ok && strings.Trim(value, `"`) == jobID {
			return true
		}
	}
	return false
}
