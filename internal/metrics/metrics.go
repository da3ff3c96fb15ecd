// Package metrics defines the Prometheus collectors for the translation
// pipeline. A nil *Metrics is valid and records nothing, so components can be
// built without instrumentation in tests and one-shot CLI runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "akt"

type Metrics struct {
	CapabilityCalls    *prometheus.CounterVec
	CapabilityAttempts *prometheus.HistogramVec
	ReviewDecisions    *prometheus.CounterVec
	CycleIterations    prometheus.Histogram
	ChunkFallbacks     prometheus.Counter
	LanguageJobs       *prometheus.CounterVec
	WSConnections      prometheus.Gauge
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CapabilityCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_calls_total",
			Help:      "Model capability invocations by prompt and outcome.",
		}, []string{"prompt", "status"}),
		CapabilityAttempts: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capability_attempts",
			Help:      "Generation attempts needed per capability invocation.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}, []string{"prompt"}),
		ReviewDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_decisions_total",
			Help:      "Reviewer decisions.",
		}, []string{"decision"}),
		CycleIterations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_iterations",
			Help:      "Translate passes per completed cycle.",
			Buckets:   []float64{1, 2, 3, 4},
		}),
		ChunkFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_fallbacks_total",
			Help:      "Chunks replaced by their original content after a failed cycle.",
		}),
		LanguageJobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "language_jobs_total",
			Help:      "Per-language translation jobs by outcome.",
		}, []string{"status"}),
		WSConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open websocket connections.",
		}),
	}
}

func (m *Metrics) CapabilityCall(prompt, status string, attempts int) {
	if m == nil {
		return
	}
	m.CapabilityCalls.WithLabelValues(prompt, status).Inc()
	m.CapabilityAttempts.WithLabelValues(prompt).Observe(float64(attempts))
}

func (m *Metrics) ReviewDecision(decision string) {
	if m == nil {
		return
	}
	m.ReviewDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) CycleDone(iterations int) {
	if m == nil {
		return
	}
	m.CycleIterations.Observe(float64(iterations))
}

func (m *Metrics) ChunkFallback() {
	if m == nil {
		return
	}
	m.ChunkFallbacks.Inc()
}

func (m *Metrics) LanguageJob(status string) {
	if m == nil {
		return
	}
	m.LanguageJobs.WithLabelValues(status).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
