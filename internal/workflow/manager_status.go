package workflow

import (
	"context"

	"weft/internal/activity"
	"weft/internal/backend"
)

// StatusSummary is a point-in-time view of the dispatcher.
type StatusSummary struct {
	Running        bool
	Draining       bool
	InFlight       int
	Pools          []Pool
	LastError      string
	QueueStats     map[string]map[backend.JobStatus]int
	ActivityHealth []activity.Health
}

// Status reports dispatcher state, per-queue job counts, and the health of
// activities that can check their dependencies.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:  m.running,
		Draining: m.draining,
		InFlight: m.inFlight,
		Pools:    m.Pools(),
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	if stats, err := m.client.JobStats(ctx); err == nil {
		summary.QueueStats = stats
	} else if summary.LastError == "" {
		summary.LastError = err.Error()
	}

	for _, act := range m.registry.Activities() {
		checker, ok := act.(activity.HealthChecker)
		if !ok {
			continue
		}
		summary.ActivityHealth = append(summary.ActivityHealth, checker.HealthCheck(ctx))
	}
	return summary
}
