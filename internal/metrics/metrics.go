// Package metrics exposes dispatcher counters and the health endpoint.
//
// Collectors live on a private registry so tests and multiple dispatchers in
// one process never collide on global registration.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "weft"

// Outcome labels for the job duration histogram.
const (
	OutcomeSucceeded   = "succeeded"
	OutcomeRetried     = "retried"
	OutcomeFailed      = "failed"
	OutcomeInterrupted = "interrupted"
)

// Collector records per queue and activity job metrics. A nil Collector is
// valid and records nothing.
type Collector struct {
	registry  *prometheus.Registry
	claimed   *prometheus.CounterVec
	succeeded *prometheus.CounterVec
	retried   *prometheus.CounterVec
	failed    *prometheus.CounterVec
	inFlight  *prometheus.GaugeVec
	poolSize  *prometheus.GaugeVec
	duration  *prometheus.HistogramVec
}

// New builds a Collector registered on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Collector {
	jobLabels := []string{"queue", "activity"}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		claimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_claimed_total",
			Help:      "Jobs leased by dispatcher workers",
		}, jobLabels),
		succeeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_succeeded_total",
			Help:      "Jobs whose activity and state transition completed",
		}, jobLabels),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_retried_total",
			Help:      "Jobs rescheduled after a retriable failure",
		}, jobLabels),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Jobs dead-lettered after a permanent failure or exhausted attempts",
		}, jobLabels),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently executing",
		}, []string{"queue"}),
		poolSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_workers",
			Help:      "Configured worker count per queue",
		}, []string{"queue"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time from claim to settlement",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 9),
		}, []string{"queue", "activity", "outcome"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.claimed, c.succeeded, c.retried, c.failed,
		c.inFlight, c.poolSize, c.duration,
	)
	return c
}

// Registry returns the registry backing /metrics.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) SetPoolSize(queue string, workers int) {
	if c == nil {
		return
	}
	c.poolSize.WithLabelValues(queue).Set(float64(workers))
}

// JobClaimed counts a lease and marks the job in flight.
func (c *Collector) JobClaimed(queue, activity string) {
	if c == nil {
		return
	}
	c.claimed.WithLabelValues(queue, activity).Inc()
	c.inFlight.WithLabelValues(queue).Inc()
}

// JobSettled records the terminal outcome of one attempt and clears its in-flight mark.
func (c *Collector) JobSettled(queue, activity, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.inFlight.WithLabelValues(queue).Dec()
	switch outcome {
	case OutcomeSucceeded:
		c.succeeded.WithLabelValues(queue, activity).Inc()
	case OutcomeRetried:
		c.retried.WithLabelValues(queue, activity).Inc()
	case OutcomeFailed:
		c.failed.WithLabelValues(queue, activity).Inc()
	}
	c.duration.WithLabelValues(queue, activity, outcome).Observe(elapsed.Seconds())
}
