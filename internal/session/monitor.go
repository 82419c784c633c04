package session

import (
	"sync"
	"time"
)

// TickMetricsSnapshot summarises observed tick processing durations for one match.
type TickMetricsSnapshot struct {
	Samples  int           `json:"samples"`
	Average  time.Duration `json:"average"`
	Max      time.Duration `json:"max"`
	Last     time.Duration `json:"last"`
	Overruns int           `json:"overruns"`
}

// AverageHz derives the tick-rate equivalent of the sampled duration.
func (s TickMetricsSnapshot) AverageHz() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// TickMonitor accumulates timing statistics for a match loop. An overrun is a
// tick whose processing exceeded its own budget, the leading indicator that a
// session is about to fall behind real time.
type TickMonitor struct {
	mu       sync.Mutex
	budget   time.Duration
	samples  int
	total    time.Duration
	max      time.Duration
	last     time.Duration
	overruns int
}

// NewTickMonitor constructs a monitor with the given per-tick budget.
func NewTickMonitor(budget time.Duration) *TickMonitor {
	return &TickMonitor{budget: budget}
}

// Observe records the duration of a completed tick.
func (m *TickMonitor) Observe(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.mu.Lock()
	m.samples++
	m.total += duration
	if duration > m.max {
		m.max = duration
	}
	m.last = duration
	if m.budget > 0 && duration > m.budget {
		m.overruns++
	}
	m.mu.Unlock()
}

// Snapshot returns a copy of the aggregated tick statistics.
func (m *TickMonitor) Snapshot() TickMetricsSnapshot {
	if m == nil {
		return TickMetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	average := time.Duration(0)
	if m.samples > 0 {
		average = m.total / time.Duration(m.samples)
	}
	return TickMetricsSnapshot{
		Samples:  m.samples,
		Average:  average,
		Max:      m.max,
		Last:     m.last,
		Overruns: m.overruns,
	}
}
