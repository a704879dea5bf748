package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/source"
)

// Metrics holds the pipeline's prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	fetches       *prometheus.CounterVec
	fetchLatency  *prometheus.HistogramVec
	conflicts     *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	decisions     *prometheus.CounterVec
	confidence    *prometheus.HistogramVec
	runs          *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: source, outcome (ok or an error kind)
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reconcile",
			Subsystem: "source",
			Name:      "fetches_total",
			Help:      "Adapter fetches by source and outcome",
		}, []string{"source", "outcome"}),
		fetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reconcile",
			Subsystem: "source",
			Name:      "fetch_seconds",
			Help:      "Adapter fetch latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reconcile",
			Subsystem: "pipeline",
			Name:      "conflicts_total",
			Help:      "Fields whose sources disagreed beyond tolerance",
		}, []string{"phase", "category"}),
		phaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reconcile",
			Subsystem: "pipeline",
			Name:      "phase_seconds",
			Help:      "Phase wall time in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"phase"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reconcile",
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Quality gate decisions by phase and outcome",
		}, []string{"phase", "decision"}),
		confidence: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reconcile",
			Subsystem: "gate",
			Name:      "confidence",
			Help:      "Distribution of phase confidence at the gate",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1.0},
		}, []string{"phase"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reconcile",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Finished pipeline runs by final status",
		}, []string{"status"}),
	}
}

func (m *Metrics) fetch(src string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(source.KindOf(err))
	}
	m.fetches.WithLabelValues(src, outcome).Inc()
	m.fetchLatency.WithLabelValues(src).Observe(elapsed.Seconds())
}

func (m *Metrics) conflict(phase model.Phase, category string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(string(phase), category).Inc()
}

func (m *Metrics) phase(phase model.Phase, elapsed time.Duration, d model.QualityGateDecision) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(string(phase)).Observe(elapsed.Seconds())
	m.decisions.WithLabelValues(string(phase), string(d.Decision)).Inc()
	m.confidence.WithLabelValues(string(phase)).Observe(d.Confidence)
}

func (m *Metrics) run(status model.RunStatus) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(status)).Inc()
}
