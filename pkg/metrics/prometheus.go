// Package metrics provides Prometheus metrics for the caddie service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "caddie"

// Metrics holds every collector the service exports. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	rowsInserted   *prometheus.CounterVec
	fetchFailures  *prometheus.CounterVec
	rowsDropped    *prometheus.CounterVec
	featureBuild   prometheus.Histogram
	trainingRows   prometheus.Counter
	jobsFinished   *prometheus.CounterVec
	breakerChanges *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from gatherer.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: gatherer,
		rowsInserted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "rows_inserted_total",
			Help:      "Rows written to the store, by table.",
		}, []string{"table"}),
		fetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "fetch_failures_total",
			Help:      "Upstream fetches that failed and degraded to an empty result, by source.",
		}, []string{"source"}),
		rowsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "rows_dropped_total",
			Help:      "Scraped rows dropped during parsing, by source.",
		}, []string{"source"}),
		featureBuild: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "features",
			Name:      "build_duration_seconds",
			Help:      "Time spent computing rolling features for a batch of events.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		trainingRows: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "rows_built_total",
			Help:      "Training rows assembled.",
		}),
		jobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "jobs_finished_total",
			Help:      "Backfill jobs finished, by type and final status.",
		}, []string{"type", "status"}),
		breakerChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "breaker_state_changes_total",
			Help:      "Circuit breaker transitions, by breaker and target state.",
		}, []string{"breaker", "state"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RowsInserted(table string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsInserted.WithLabelValues(table).Add(float64(n))
}

func (m *Metrics) FetchFailed(source string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) RowsDropped(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsDropped.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) ObserveFeatureBuild(d time.Duration) {
	if m == nil {
		return
	}
	m.featureBuild.Observe(d.Seconds())
}

func (m *Metrics) TrainingRowsBuilt(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.trainingRows.Add(float64(n))
}

func (m *Metrics) JobFinished(jobType, status string) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(jobType, status).Inc()
}

func (m *Metrics) BreakerStateChanged(name, state string) {
	if m == nil {
		return
	}
	m.breakerChanges.WithLabelValues(name, state).Inc()
}
