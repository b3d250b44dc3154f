package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the expansion engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Expansion metrics
	ExpansionsTotal   *prometheus.CounterVec
	ExpansionDuration *prometheus.HistogramVec
	FailuresTotal     *prometheus.CounterVec
	DiagnosticRetries *prometheus.CounterVec

	// Indirect store metrics
	LeakedKeys prometheus.Counter
	StoreSize  prometheus.Gauge

	// Registry metrics
	RegisteredBlocks prometheus.Gauge

	// Snapshot for summaries - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values
type MetricsSnapshot struct {
	Expansions    int64
	Failures      int64
	Retries       int64
	LeakedKeys    int64
	TotalDuration float64 // sum of all expansion durations
}

// NewMetrics creates a metrics collector registered with reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ExpansionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockforge_expansions_total",
				Help: "Total number of building block expansions",
			},
			[]string{"macro", "status"},
		),
		ExpansionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blockforge_expansion_duration_seconds",
				Help:    "Building block expansion duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"macro"},
		),
		FailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockforge_expansion_failures_total",
				Help: "Total number of failed expansions by error code",
			},
			[]string{"macro", "code"},
		),
		DiagnosticRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockforge_diagnostic_retries_total",
				Help: "Total number of template re-renders in diagnostic mode",
			},
			[]string{"macro"},
		),
		LeakedKeys: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "blockforge_store_leaked_keys_total",
				Help: "Total number of indirect store keys reclaimed after expansion",
			},
		),
		StoreSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "blockforge_store_entries",
				Help: "Number of entries in the indirect store",
			},
		),
		RegisteredBlocks: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "blockforge_registered_blocks",
				Help: "Number of registered building block keys",
			},
		),
	}
}

// RecordExpansion records a finished expansion
func (m *Metrics) RecordExpansion(macro, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ExpansionsTotal.WithLabelValues(macro, status).Inc()
	m.ExpansionDuration.WithLabelValues(macro).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Expansions++
	m.snapshot.TotalDuration += duration.Seconds()
	m.mu.Unlock()
}

// RecordFailure records a failed expansion
func (m *Metrics) RecordFailure(macro, code string) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(macro, code).Inc()

	m.mu.Lock()
	m.snapshot.Failures++
	m.mu.Unlock()
}

// RecordRetry records a diagnostic re-render
func (m *Metrics) RecordRetry(macro string) {
	if m == nil {
		return
	}
	m.DiagnosticRetries.WithLabelValues(macro).Inc()

	m.mu.Lock()
	m.snapshot.Retries++
	m.mu.Unlock()
}

// AddLeakedKeys records reclaimed store keys
func (m *Metrics) AddLeakedKeys(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LeakedKeys.Add(float64(n))

	m.mu.Lock()
	m.snapshot.LeakedKeys += int64(n)
	m.mu.Unlock()
}

// SetStoreSize sets the number of indirect store entries
func (m *Metrics) SetStoreSize(n int) {
	if m == nil {
		return
	}
	m.StoreSize.Set(float64(n))
}

// SetRegisteredBlocks sets the number of registered keys
func (m *Metrics) SetRegisteredBlocks(n int) {
	if m == nil {
		return
	}
	m.RegisteredBlocks.Set(float64(n))
}
