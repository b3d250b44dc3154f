package monitoring

import (
	"fmt"
	"time"
)

// Snapshot returns a copy of the current values
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Summary renders the snapshot as one line
func (s MetricsSnapshot) Summary() string {
	avg := 0.0
	if s.Expansions > 0 {
		avg = s.TotalDuration / float64(s.Expansions)
	}
	return fmt.Sprintf("expansions=%d failures=%d retries=%d leaked=%d avg=%s",
		s.Expansions, s.Failures, s.Retries, s.LeakedKeys,
		time.Duration(avg*float64(time.Second)))
}

// Timer measures one expansion
type Timer struct {
	start   time.Time
	metrics *Metrics
	macro   string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, macro string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		macro:   macro,
	}
}

// Stop stops the timer and records the expansion
func (t *Timer) Stop(status string) time.Duration {
	duration := time.Since(t.start)
	t.metrics.RecordExpansion(t.macro, status, duration)
	return duration
}
