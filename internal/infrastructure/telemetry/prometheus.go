package telemetry

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "returns"

// Metrics holds the service's Prometheus collectors on a private registry.
// It implements the orchestrator, outbox and courier observer interfaces.
type Metrics struct {
	registry *prometheus.Registry

	transitions       *prometheus.CounterVec
	casConflicts      *prometheus.CounterVec
	deadlines         *prometheus.CounterVec
	trackingUpdates   *prometheus.CounterVec
	outboxDeliveries  *prometheus.CounterVec
	eventDedupe       *prometheus.CounterVec
	courierCalls      *prometheus.CounterVec
	courierCallTiming *prometheus.HistogramVec
	jobRuns           *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// NewMetrics creates and registers every collector
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transitions_total",
			Help:      "Committed return request status transitions.",
		}, []string{"from", "to", "trigger"}),
		casConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cas_conflicts_total",
			Help:      "Compare-and-swap writes that lost to a concurrent update.",
		}, []string{"operation"}),
		deadlines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deadline_firings_total",
			Help:      "Deadline firings by kind and outcome.",
		}, []string{"kind", "outcome"}),
		trackingUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tracking_updates_total",
			Help:      "Courier tracking updates by source and whether they changed state.",
		}, []string{"source", "applied"}),
		outboxDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "outbox_deliveries_total",
			Help:      "Outbox delivery attempts by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		eventDedupe: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "event_dedupe_total",
			Help:      "Idempotent event handling by handler and outcome (processed, duplicate, failed, store_error).",
		}, []string{"handler", "outcome"}),
		courierCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "courier_calls_total",
			Help:      "Courier API calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		courierCallTiming: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "courier_call_duration_seconds",
			Help:      "Courier API call latency including retries.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "job_runs_total",
			Help:      "Periodic job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transitions,
		m.casConflicts,
		m.deadlines,
		m.trackingUpdates,
		m.outboxDeliveries,
		m.eventDedupe,
		m.courierCalls,
		m.courierCallTiming,
		m.jobRuns,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// WatchDatabase exports the pool statistics of db under db_name
func (m *Metrics) WatchDatabase(db *sql.DB, name string) {
	m.registry.MustRegister(collectors.NewDBStatsCollector(db, name))
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TransitionObserved counts a committed status change
func (m *Metrics) TransitionObserved(from, to, trigger string) {
	m.transitions.WithLabelValues(from, to, trigger).Inc()
}

// CASConflict counts a lost compare-and-swap
func (m *Metrics) CASConflict(operation string) {
	m.casConflicts.WithLabelValues(operation).Inc()
}

// DeadlineFired counts a deadline firing
func (m *Metrics) DeadlineFired(kind, outcome string) {
	m.deadlines.WithLabelValues(kind, outcome).Inc()
}

// TrackingUpdate counts a courier tracking update
func (m *Metrics) TrackingUpdate(source string, applied bool) {
	m.trackingUpdates.WithLabelValues(source, strconv.FormatBool(applied)).Inc()
}

// ObserveOutboxDelivery counts an outbox delivery attempt
func (m *Metrics) ObserveOutboxDelivery(eventType, outcome string) {
	m.outboxDeliveries.WithLabelValues(eventType, outcome).Inc()
}

// ObserveDedupe counts one idempotent handling outcome
func (m *Metrics) ObserveDedupe(handler, outcome string) {
	m.eventDedupe.WithLabelValues(handler, outcome).Inc()
}

// ObserveCourierCall counts a courier call and records its latency
func (m *Metrics) ObserveCourierCall(op, outcome string, elapsed time.Duration) {
	m.courierCalls.WithLabelValues(op, outcome).Inc()
	m.courierCallTiming.WithLabelValues(op).Observe(elapsed.Seconds())
}

// JobRun counts a periodic job run
func (m *Metrics) JobRun(job string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
}

// ObserveHTTPRequest counts a served request and records its latency.
// route is the matched pattern, never the raw path.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
