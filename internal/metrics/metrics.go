// Package metrics exposes Prometheus metrics for the import pipeline.
//
// A Registry owns a private prometheus.Registry (no global state) with Go
// runtime and process collectors plus the import metric set. A nil
// *Registry is valid and records nothing, so callers that run without
// metrics (the CLI, most tests) need no special casing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/charimport/internal/ingest"
)

const namespace = "charimport"

// Import run outcomes used as the status label.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
)

// Registry holds the import metrics.
type Registry struct {
	registry *prometheus.Registry

	importsTotal    *prometheus.CounterVec   // dialect, status
	failuresTotal   *prometheus.CounterVec   // dialect, kind
	rowsTotal       *prometheus.CounterVec   // dialect, outcome (accepted or a skip reason)
	importDuration  *prometheus.HistogramVec // dialect
	successRate     *prometheus.HistogramVec // dialect
	lowYieldTotal   *prometheus.CounterVec   // dialect
	activeImports   prometheus.Gauge
	retentionPurged prometheus.Counter
}

// New creates a registry with runtime collectors and the import metrics.
func New() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		importsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Import runs by dialect and outcome",
		}, []string{"dialect", "status"}),

		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_failures_total",
			Help:      "Fatal import failures by kind",
		}, []string{"dialect", "kind"}),

		rowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Data rows processed by outcome",
		}, []string{"dialect", "outcome"}),

		importDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Import run duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"dialect"}),

		successRate: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_success_ratio",
			Help:      "Accepted rows over data rows per run",
			Buckets:   []float64{0.1, 0.25, 0.5, 0.75, 0.8, 0.9, 0.95, 0.99, 1},
		}, []string{"dialect"}),

		lowYieldTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "low_yield_imports_total",
			Help:      "Runs that accepted fewer records than the low-yield threshold",
		}, []string{"dialect"}),

		activeImports: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_imports",
			Help:      "Imports currently holding a slot",
		}),

		retentionPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_purged_total",
			Help:      "Import runs removed by the retention job",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.importsTotal,
		r.failuresTotal,
		r.rowsTotal,
		r.importDuration,
		r.successRate,
		r.lowYieldTotal,
		r.activeImports,
		r.retentionPurged,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// ObserveRun records a completed run. report may be nil for runs that
// failed before a report existed.
func (r *Registry) ObserveRun(dialect, status string, took time.Duration, report *ingest.Report, lowYield bool) {
	if r == nil {
		return
	}
	r.importsTotal.WithLabelValues(dialect, status).Inc()
	r.importDuration.WithLabelValues(dialect).Observe(took.Seconds())

	if report == nil {
		return
	}
	r.rowsTotal.WithLabelValues(dialect, "accepted").Add(float64(report.Accepted))
	for reason, n := range report.Histogram() {
		if n > 0 {
			r.rowsTotal.WithLabelValues(dialect, string(reason)).Add(float64(n))
		}
	}
	if report.DataRows() > 0 {
		r.successRate.WithLabelValues(dialect).Observe(report.SuccessRate())
	}
	if lowYield {
		r.lowYieldTotal.WithLabelValues(dialect).Inc()
	}
}

// ObserveFailure counts a fatal failure by its kind name.
func (r *Registry) ObserveFailure(dialect, kind string) {
	if r == nil {
		return
	}
	if kind == "" {
		kind = "other"
	}
	r.failuresTotal.WithLabelValues(dialect, kind).Inc()
}

// ImportStarted and ImportFinished track slot occupancy.
func (r *Registry) ImportStarted() {
	if r != nil {
		r.activeImports.Inc()
	}
}

// ImportFinished is the counterpart of ImportStarted.
func (r *Registry) ImportFinished() {
	if r != nil {
		r.activeImports.Dec()
	}
}

// ObservePurge counts import runs removed by retention.
func (r *Registry) ObservePurge(n int64) {
	if r != nil && n > 0 {
		r.retentionPurged.Add(float64(n))
	}
}
