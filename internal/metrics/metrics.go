// Package metrics exposes Prometheus collectors for the sync loop and the
// REST surface on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/gridstate/internal/model"
)

const namespace = "gridstate"

// Metrics holds every collector. A nil *Metrics is valid and records
// nothing, so libraries can take one optionally.
type Metrics struct {
	registry *prometheus.Registry

	commitsApplied *prometheus.CounterVec
	applyFailures  *prometheus.CounterVec
	rollbacks      *prometheus.CounterVec
	rolledBackRows *prometheus.CounterVec
	height         *prometheus.GaugeVec
	applyDuration  prometheus.Histogram
	requests       *prometheus.HistogramVec
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commitsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_applied_total",
			Help:      "Ledger commits applied to the state store.",
		}, []string{"service_id"}),
		applyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apply_failures_total",
			Help:      "Batches rejected by the state store, by error code.",
		}, []string{"code"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Fork rollbacks performed.",
		}, []string{"service_id"}),
		rolledBackRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rolled_back_rows_total",
			Help:      "Rows deleted or reopened by fork rollbacks.",
		}, []string{"action"}),
		height: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_height",
			Help:      "Highest commit recorded per service chain.",
		}, []string{"service_id"}),
		applyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "apply_duration_seconds",
			Help:      "Time to apply one batch, including the commit.",
			Buckets:   prometheus.DefBuckets,
		}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "REST request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.commitsApplied,
		m.applyFailures,
		m.rollbacks,
		m.rolledBackRows,
		m.height,
		m.applyDuration,
		m.requests,
	)
	return m
}

// Registry returns the backing registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CommitApplied records a successful batch.
func (m *Metrics) CommitApplied(scope *string, commit model.Commit, took time.Duration) {
	if m == nil {
		return
	}
	name := model.ScopeName(scope)
	m.commitsApplied.WithLabelValues(name).Inc()
	m.height.WithLabelValues(name).Set(float64(commit))
	m.applyDuration.Observe(took.Seconds())
}

// ApplyFailed records a rejected batch.
func (m *Metrics) ApplyFailed(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "UNKNOWN"
	}
	m.applyFailures.WithLabelValues(code).Inc()
}

// RolledBack records a fork rollback.
func (m *Metrics) RolledBack(scope *string, target model.Commit, deleted, reopened int64) {
	if m == nil {
		return
	}
	name := model.ScopeName(scope)
	m.rollbacks.WithLabelValues(name).Inc()
	m.height.WithLabelValues(name).Set(float64(target))
	m.rolledBackRows.WithLabelValues("deleted").Add(float64(deleted))
	m.rolledBackRows.WithLabelValues("reopened").Add(float64(reopened))
}

// ObserveRequest records one REST request.
func (m *Metrics) ObserveRequest(route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Observe(took.Seconds())
}
