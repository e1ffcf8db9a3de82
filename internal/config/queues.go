package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// QueueEnvVar overrides queues.spec when set.
const QueueEnvVar = "WEFT_QUEUES"

var (
	queueNamePattern  = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	queueCountPattern = regexp.MustCompile(`^[0-9]+$`)
)

// QueueSpec is one named queue and the number of workers serving it.
type QueueSpec struct {
	Name        string
	Concurrency int
}

// ParseQueueSpec parses "name,count;name,count;..." into an ordered list.
// A single trailing ";" is tolerated. Blank segments elsewhere, counts that
// are not plain positive decimals (signs included), and duplicate names are
// rejected.
func ParseQueueSpec(raw string) ([]QueueSpec, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("queues.spec: no queues configured")
	}
	trimmed = strings.TrimSuffix(trimmed, ";")

	segments := strings.Split(trimmed, ";")
	specs := make([]QueueSpec, 0, len(segments))
	seen := make(map[string]struct{}, len(segments))
	for idx, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			return nil, fmt.Errorf("queues.spec: entry %d is empty", idx+1)
		}
		parts := strings.Split(segment, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("queues.spec: entry %q must be name,count", segment)
		}
		name := strings.TrimSpace(parts[0])
		if !queueNamePattern.MatchString(name) {
			return nil, fmt.Errorf("queues.spec: invalid queue name %q", name)
		}
		rawCount := strings.TrimSpace(parts[1])
		if !queueCountPattern.MatchString(rawCount) {
			return nil, fmt.Errorf("queues.spec: queue %q count %q is not a number", name, rawCount)
		}
		count, err := strconv.Atoi(rawCount)
		if err != nil {
			return nil, fmt.Errorf("queues.spec: queue %q count %q: %w", name, rawCount, err)
		}
		if count < 1 {
			return nil, fmt.Errorf("queues.spec: queue %q count must be at least 1, got %d", name, count)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("queues.spec: duplicate queue %q", name)
		}
		seen[name] = struct{}{}
		specs = append(specs, QueueSpec{Name: name, Concurrency: count})
	}
	return specs, nil
}

// QueueSpecs parses the configured queue specification.
func (c *Config) QueueSpecs() ([]QueueSpec, error) {
	return ParseQueueSpec(c.Queues.Spec)
}

// FormatQueueSpec renders specs back into the delimited form.
func FormatQueueSpec(specs []QueueSpec) string {
	parts := make([]string, 0, len(specs))
	for _, spec := range specs {
		parts = append(parts, spec.Name+","+strconv.Itoa(spec.Concurrency))
	}
	return strings.Join(parts, ";")
}

func queueSpecFromEnv() (string, bool) {
	value, ok := os.LookupEnv(QueueEnvVar)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return strings.TrimSpace(value), true
}
