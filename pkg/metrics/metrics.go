// Package metrics provides counters and gauges for broker activity.
package metrics

import "sync/atomic"

// Note: This is a minimal implementation without a prometheus dependency.
// To use real Prometheus, add: github.com/prometheus/client_golang

// Metrics holds all broker metrics.
type Metrics struct {
	// Jobs
	JobsQueued    *Counter
	JobsDelivered *Counter
	JobsDeleted   *Counter
	JobsAborted   *Counter
	JobsRequeued  *Counter

	// Connections
	ConnectionsServed *Counter
	ConnectionsActive *Gauge

	// Waiters
	WaitersBlocked *Gauge

	// Protocol
	BadRequests *Counter
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Uint64
}

// Gauge is a value that can go up or down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

// New creates a new metrics instance.
func New() *Metrics {
	return &Metrics{
		// Jobs
		JobsQueued:    NewCounter("jobq_jobs_queued_total", "Total jobs put onto queues"),
		JobsDelivered: NewCounter("jobq_jobs_delivered_total", "Total jobs handed to clients"),
		JobsDeleted:   NewCounter("jobq_jobs_deleted_total", "Total jobs deleted"),
		JobsAborted:   NewCounter("jobq_jobs_aborted_total", "Total jobs explicitly aborted"),
		JobsRequeued:  NewCounter("jobq_jobs_requeued_total", "Total jobs requeued on disconnect"),

		// Connections
		ConnectionsServed: NewCounter("jobq_connections_served_total", "Total connections accepted"),
		ConnectionsActive: NewGauge("jobq_connections_active", "Currently open connections"),

		// Waiters
		WaitersBlocked: NewGauge("jobq_waiters_blocked", "Gets currently blocked waiting"),

		// Protocol
		BadRequests: NewCounter("jobq_bad_requests_total", "Requests that failed to parse"),
	}
}

// NewCounter creates a new counter.
func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

// NewGauge creates a new gauge.
func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

// Inc increments the counter by one.
func (c *Counter) Inc() {
	if c == nil {
		return
	}
	c.value.Add(1)
}

// Value returns the current count.
func (c *Counter) Value() uint64 {
	if c == nil {
		return 0
	}
	return c.value.Load()
}

// Name returns the metric name.
func (c *Counter) Name() string { return c.name }

// Inc increments the gauge by one.
func (g *Gauge) Inc() {
	if g == nil {
		return
	}
	g.value.Add(1)
}

// Dec decrements the gauge by one.
func (g *Gauge) Dec() {
	if g == nil {
		return
	}
	g.value.Add(-1)
}

// Value returns the current gauge value.
func (g *Gauge) Value() int64 {
	if g == nil {
		return 0
	}
	return g.value.Load()
}

// Name returns the metric name.
func (g *Gauge) Name() string { return g.name }

// Snapshot returns every metric as name -> value for the stats endpoint.
func (m *Metrics) Snapshot() map[string]int64 {
	if m == nil {
		return nil
	}
	return map[string]int64{
		m.JobsQueued.Name():        int64(m.JobsQueued.Value()),
		m.JobsDelivered.Name():     int64(m.JobsDelivered.Value()),
		m.JobsDeleted.Name():       int64(m.JobsDeleted.Value()),
		m.JobsAborted.Name():       int64(m.JobsAborted.Value()),
		m.JobsRequeued.Name():      int64(m.JobsRequeued.Value()),
		m.ConnectionsServed.Name(): int64(m.ConnectionsServed.Value()),
		m.ConnectionsActive.Name(): m.ConnectionsActive.Value(),
		m.WaitersBlocked.Name():    m.WaitersBlocked.Value(),
		m.BadRequests.Name():       int64(m.BadRequests.Value()),
	}
}
