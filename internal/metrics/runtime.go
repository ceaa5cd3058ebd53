package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var latencyBucketUpperBoundsMs = []int64{
	10, 25, 50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000,
}

// RuntimeSnapshot contains aggregated dispatch metrics.
type RuntimeSnapshot struct {
	UpdatedAt time.Time                `json:"updated_at"`
	Dispatch  DispatchStats            `json:"dispatch"`
	Actions   map[string]ActionCounter `json:"actions,omitempty"`
}

// DispatchStats tracks dispatch outcomes across all actions.
type DispatchStats struct {
	Total             int64            `json:"total"`
	Errors            int64            `json:"errors"`
	Timeouts          int64            `json:"timeouts"`
	ErrorsByKind      map[string]int64 `json:"errors_by_kind,omitempty"`
	TotalLatencyMs    int64            `json:"total_latency_ms"`
	MaxLatencyMs      int64            `json:"max_latency_ms"`
	LastLatencyMs     int64            `json:"last_latency_ms"`
	P95ProxyLatencyMs int64            `json:"p95_proxy_latency_ms"`
}

// ActionCounter is the per-action call count.
type ActionCounter struct {
	Total  int64 `json:"total"`
	Errors int64 `json:"errors"`
}

// ErrorRatio returns errors/total in [0,1].
func (d DispatchStats) ErrorRatio() float64 {
	if d.Total <= 0 {
		return 0
	}
	return float64(d.Errors) / float64(d.Total)
}

// TimeoutRatio returns timeouts/total in [0,1].
func (d DispatchStats) TimeoutRatio() float64 {
	if d.Total <= 0 {
		return 0
	}
	return float64(d.Timeouts) / float64(d.Total)
}

// AvgLatencyMs returns average latency in milliseconds.
func (d DispatchStats) AvgLatencyMs() float64 {
	if d.Total <= 0 {
		return 0
	}
	return float64(d.TotalLatencyMs) / float64(d.Total)
}

// HasData reports whether any dispatch was recorded.
func (s RuntimeSnapshot) HasData() bool {
	return s.Dispatch.Total > 0
}

// Outcome describes one finished dispatch. Kind is empty on success.
type Outcome struct {
	Action   string
	Duration time.Duration
	Kind     string
	Err      error
}

// RuntimeMetrics aggregates dispatch outcomes in memory. Nothing is written
// to disk: the service keeps no record of individual actions.
type RuntimeMetrics struct {
	mu      sync.Mutex
	snap    RuntimeSnapshot
	buckets []int64
}

// NewRuntimeMetrics creates an empty recorder.
func NewRuntimeMetrics() *RuntimeMetrics {
	return &RuntimeMetrics{
		buckets: make([]int64, len(latencyBucketUpperBoundsMs)+1),
	}
}

// Snapshot returns a copy of the current aggregates.
func (m *RuntimeMetrics) Snapshot() RuntimeSnapshot {
	if m == nil {
		return RuntimeSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyLocked()
}

// RecordDispatch folds one outcome into the aggregates and returns the
// updated snapshot.
func (m *RuntimeMetrics) RecordDispatch(out Outcome) RuntimeSnapshot {
	if m == nil {
		return RuntimeSnapshot{}
	}

	latencyMs := out.Duration.Milliseconds()
	if latencyMs < 0 {
		latencyMs = 0
	}
	failed := out.Err != nil || out.Kind != ""

	m.mu.Lock()
	defer m.mu.Unlock()

	m.snap.UpdatedAt = time.Now().UTC()
	d := &m.snap.Dispatch
	d.Total++
	d.TotalLatencyMs += latencyMs
	d.LastLatencyMs = latencyMs
	if latencyMs > d.MaxLatencyMs {
		d.MaxLatencyMs = latencyMs
	}
	if failed {
		d.Errors++
		if out.Kind != "" {
			if d.ErrorsByKind == nil {
				d.ErrorsByKind = make(map[string]int64)
			}
			d.ErrorsByKind[out.Kind]++
		}
		if isTimeoutError(out.Err) {
			d.Timeouts++
		}
	}

	if name := strings.TrimSpace(out.Action); name != "" {
		if m.snap.Actions == nil {
			m.snap.Actions = make(map[string]ActionCounter)
		}
		counter := m.snap.Actions[name]
		counter.Total++
		if failed {
			counter.Errors++
		}
		m.snap.Actions[name] = counter
	}

	m.buckets[latencyBucketIndex(latencyMs)]++
	d.P95ProxyLatencyMs = p95ProxyFromBuckets(m.buckets, d.Total)

	return m.copyLocked()
}

func (m *RuntimeMetrics) copyLocked() RuntimeSnapshot {
	out := m.snap
	if m.snap.Dispatch.ErrorsByKind != nil {
		out.Dispatch.ErrorsByKind = make(map[string]int64, len(m.snap.Dispatch.ErrorsByKind))
		for k, v := range m.snap.Dispatch.ErrorsByKind {
			out.Dispatch.ErrorsByKind[k] = v
		}
	}
	if m.snap.Actions != nil {
		out.Actions = make(map[string]ActionCounter, len(m.snap.Actions))
		for k, v := range m.snap.Actions {
			out.Actions[k] = v
		}
	}
	return out
}

func latencyBucketIndex(latencyMs int64) int {
	for i, upper := range latencyBucketUpperBoundsMs {
		if latencyMs <= upper {
			return i
		}
	}
	return len(latencyBucketUpperBoundsMs)
}

func p95ProxyFromBuckets(buckets []int64, total int64) int64 {
	if total <= 0 {
		return 0
	}
	target := int64(float64(total) * 0.95)
	if target <= 0 {
		target = 1
	}

	var cumulative int64
	for i, count := range buckets {
		cumulative += count
		if cumulative < target {
			continue
		}
		if i >= len(latencyBucketUpperBoundsMs) {
			return latencyBucketUpperBoundsMs[len(latencyBucketUpperBoundsMs)-1]
		}
		return latencyBucketUpperBoundsMs[i]
	}
	return latencyBucketUpperBoundsMs[len(latencyBucketUpperBoundsMs)-1]
}

type timeoutReporter interface {
	TimedOut() bool
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var reporter timeoutReporter
	if errors.As(err, &reporter) && reporter.TimedOut() {
		return true
	}
	lowered := strings.ToLower(err.Error())
	return strings.Contains(lowered, "deadline exceeded") ||
		strings.Contains(lowered, "timeout") ||
		strings.Contains(lowered, "timed out")
}
