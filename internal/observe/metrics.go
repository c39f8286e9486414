package observe

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hurttlocker/scamintel/internal/intel"
)

// Metrics exposes Prometheus collectors for the extraction engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	externalCalls   *prometheus.CounterVec
	externalLatency prometheus.Histogram
	extracted       *prometheus.CounterVec
	turns           *prometheus.CounterVec
	callbacks       *prometheus.CounterVec
	activeSessions  prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// Default returns the package-level metrics registered with the global
// Prometheus registry. Collectors are created once, so repeated calls are safe.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs Metrics registered on reg. Collectors that are
// already registered are reused; any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		externalCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scamintel",
			Subsystem: "external",
			Name:      "calls_total",
			Help:      "External extractor calls by outcome.",
		}, []string{"outcome"}),
		externalLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scamintel",
			Subsystem: "external",
			Name:      "call_duration_seconds",
			Help:      "Latency of outbound external extractor calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		}),
		extracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scamintel",
			Subsystem: "extract",
			Name:      "values_total",
			Help:      "Intelligence values produced per category and source.",
		}, []string{"category", "source"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scamintel",
			Subsystem: "session",
			Name:      "turns_total",
			Help:      "Conversation turns processed, by resulting session status.",
		}, []string{"status"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scamintel",
			Subsystem: "report",
			Name:      "callbacks_total",
			Help:      "Reporting callback deliveries by outcome.",
		}, []string{"outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "scamintel",
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions held by the in-process store.",
		}),
	}

	m.externalCalls = register(reg, m.externalCalls)
	m.externalLatency = register(reg, m.externalLatency)
	m.extracted = register(reg, m.extracted)
	m.turns = register(reg, m.turns)
	m.callbacks = register(reg, m.callbacks)
	m.activeSessions = register(reg, m.activeSessions)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ExternalCall records one external extractor outcome ("ok", "cached",
// "timeout", "error", "auth_error", "empty", "unparseable", "not_ready").
// A zero duration skips the latency histogram.
func (m *Metrics) ExternalCall(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.externalCalls.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.externalLatency.Observe(d.Seconds())
	}
}

// Extracted adds the per-category value counts of rec for one source
// ("pattern", "external", "merged").
func (m *Metrics) Extracted(source string, rec intel.Record) {
	if m == nil {
		return
	}
	for _, cat := range intel.Categories {
		if n := len(rec.Values(cat)); n > 0 {
			m.extracted.WithLabelValues(string(cat), source).Add(float64(n))
		}
	}
}

// Turn counts a processed turn.
func (m *Metrics) Turn(status string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(status).Inc()
}

// Callback counts a reporting callback outcome ("sent", "error").
func (m *Metrics) Callback(outcome string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(outcome).Inc()
}

// SetActiveSessions sets the in-process session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
