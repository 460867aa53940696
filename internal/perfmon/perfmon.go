// Package perfmon implements the Performance Monitor from spec.md §4.6:
// per-endpoint counters, a bounded latency sample buffer with incrementally
// updated average and lazily recomputed p95/p99, and host-level CPU/heap
// gauges sampled on a fixed interval. Grounded on the teacher's
// infrastructure/metrics/metrics.go (prometheus.CounterVec/HistogramVec
// registration shape), replacing its blockchain request counters with the
// smarthome_* vocabulary spec.md §6 names.
package perfmon

import (
	"sort"
	"sync"
	"time"
)

const latencyBufferSize = 1000

// EndpointStats is the per-endpoint snapshot returned by Snapshot.
type EndpointStats struct {
	Requests int64
	Success  int64
	Errors   int64
	AvgMs    float64
	P95Ms    float64
	P99Ms    float64
}

type endpointState struct {
	mu       sync.Mutex
	requests int64
	success  int64
	errors   int64
	samples  []float64 // ring buffer of latencies in ms
	next     int
	size     int
	sum      float64 // running sum for incremental average
	dirty    bool
	p95, p99 float64
}

// Monitor is the process-wide performance monitor.
type Monitor struct {
	mu        sync.Mutex
	endpoints map[string]*endpointState
	startedAt time.Time
}

// New builds a Monitor. startedAt is recorded for uptime reporting.
func New(startedAt time.Time) *Monitor {
	return &Monitor{endpoints: make(map[string]*endpointState), startedAt: startedAt}
}

func (m *Monitor) endpoint(name string) *endpointState {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.endpoints[name]
	if !ok {
		e = &endpointState{samples: make([]float64, latencyBufferSize)}
		m.endpoints[name] = e
	}
	return e
}

// Observe records one request's outcome and latency for an endpoint.
func (m *Monitor) Observe(endpoint string, latency time.Duration, success bool) {
	e := m.endpoint(endpoint)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.requests++
	if success {
		e.success++
	} else {
		e.errors++
	}

	ms := float64(latency) / float64(time.Millisecond)
	if e.size < latencyBufferSize {
		e.samples[e.next] = ms
		e.size++
	} else {
		e.sum -= e.samples[e.next]
		e.samples[e.next] = ms
	}
	e.sum += ms
	e.next = (e.next + 1) % latencyBufferSize
	e.dirty = true
}

// Snapshot returns the current stats for endpoint, recomputing p95/p99 if
// dirty since the last read.
func (m *Monitor) Snapshot(endpoint string) EndpointStats {
	e := m.endpoint(endpoint)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dirty {
		e.recomputePercentilesLocked()
		e.dirty = false
	}

	avg := 0.0
	if e.size > 0 {
		avg = e.sum / float64(e.size)
	}

	return EndpointStats{
		Requests: e.requests,
		Success:  e.success,
		Errors:   e.errors,
		AvgMs:    avg,
		P95Ms:    e.p95,
		P99Ms:    e.p99,
	}
}

func (e *endpointState) recomputePercentilesLocked() {
	if e.size == 0 {
		e.p95, e.p99 = 0, 0
		return
	}
	sorted := make([]float64, e.size)
	copy(sorted, e.samples[:e.size])
	sort.Float64s(sorted)
	e.p95 = percentile(sorted, 0.95)
	e.p99 = percentile(sorted, 0.99)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Endpoints returns the names of every endpoint that has been observed or
// snapshotted; a Snapshot of an unknown name registers it with zero counts.
func (m *Monitor) Endpoints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.endpoints))
	for name := range m.endpoints {
		out = append(out, name)
	}
	return out
}

// SnapshotAll returns the current stats for every endpoint.
func (m *Monitor) SnapshotAll() map[string]EndpointStats {
	out := make(map[string]EndpointStats)
	for _, name := range m.Endpoints() {
		out[name] = m.Snapshot(name)
	}
	return out
}

// Totals aggregates Requests/Success/Errors across every endpoint.
func (m *Monitor) Totals() (requests, success, errs int64) {
	for _, name := range m.Endpoints() {
		s := m.Snapshot(name)
		requests += s.Requests
		success += s.Success
		errs += s.Errors
	}
	return
}

// Reset restores every endpoint's counters to zero and empties its buffer.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints = make(map[string]*endpointState)
}

// UptimeSeconds returns elapsed time since the monitor started.
func (m *Monitor) UptimeSeconds() float64 {
	return time.Since(m.startedAt).Seconds()
}
