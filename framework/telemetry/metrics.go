package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeStale     = "stale"
)

// Metrics holds the pipeline instruments. A nil *Metrics records nothing,
// so components can take one optionally.
type Metrics struct {
	registry *prometheus.Registry

	// runsTotal counts pipeline runs.
	// Labels: trigger (open, change, close, track, cascade), outcome (committed, stale)
	runsTotal *prometheus.CounterVec

	// runSeconds measures one document's parse-to-commit latency.
	// Labels: trigger
	runSeconds *prometheus.HistogramVec

	// cascadeSize observes how many dependents a wave re-analysed.
	cascadeSize prometheus.Histogram

	// documents tracks committed documents by state (open, tracked).
	documents *prometheus.GaugeVec

	// unresolvedTotal counts unresolved references seen at commit.
	unresolvedTotal prometheus.Counter
}

// NewMetrics registers the instruments on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schemals",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Analysis runs by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		runSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "schemals",
			Subsystem: "pipeline",
			Name:      "run_seconds",
			Help:      "Parse to commit latency of one document",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"trigger"}),
		cascadeSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "schemals",
			Subsystem: "pipeline",
			Name:      "cascade_documents",
			Help:      "Dependent documents re-analysed per wave",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		documents: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "schemals",
			Subsystem: "index",
			Name:      "documents",
			Help:      "Documents in the index by state",
		}, []string{"state"}),
		unresolvedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "schemals",
			Subsystem: "resolve",
			Name:      "unresolved_total",
			Help:      "Unresolved references at commit time",
		}),
	}
}

// RecordRun records one pipeline run.
func (m *Metrics) RecordRun(trigger, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(trigger, outcome).Inc()
	m.runSeconds.WithLabelValues(trigger).Observe(elapsed.Seconds())
}

// RecordCascade records the size of one re-analysis wave.
func (m *Metrics) RecordCascade(size int) {
	if m == nil {
		return
	}
	m.cascadeSize.Observe(float64(size))
}

// RecordUnresolved adds unresolved references found by a run.
func (m *Metrics) RecordUnresolved(n int) {
	if m == nil || n == 0 {
		return
	}
	m.unresolvedTotal.Add(float64(n))
}

// SetDocuments publishes the open and tracked document counts.
func (m *Metrics) SetDocuments(open, tracked int) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues("open").Set(float64(open))
	m.documents.WithLabelValues("tracked").Set(float64(tracked))
}

// Registry exposes the registry for gathering in tests and exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
