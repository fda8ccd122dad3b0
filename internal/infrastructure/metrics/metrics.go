// Package metrics holds the Prometheus collectors for the ledger service.
// Every recording method is safe on a nil *Metrics, so components can run
// without instrumentation in tests and in the admin CLI.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "uconnect"

// Result labels.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Ranking source labels.
const (
	SourceCache    = "cache"
	SourceComputed = "computed"
	SourceShared   = "shared"
)

// Metrics groups the collectors registered for one process.
type Metrics struct {
	registry *prometheus.Registry

	writes        *prometheus.CounterVec
	writeDuration *prometheus.HistogramVec
	xpAwarded     *prometheus.CounterVec

	rankings        *prometheus.CounterVec
	rankingDuration prometheus.Histogram
	inconsistencies *prometheus.CounterVec

	eventsPublished *prometheus.CounterVec
	eventHandlers   *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	breakerState *prometheus.GaugeVec
	jobRuns      *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		writes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "writes_total",
			Help:      "Ledger writes by operation and result",
		}, []string{"op", "result"}),
		writeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "write_duration_seconds",
			Help:      "Ledger write latency including lock wait and commit",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"op"}),
		xpAwarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "xp_awarded_total",
			Help:      "XP committed to the ledger by activity kind",
		}, []string{"kind"}),

		rankings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "requests_total",
			Help:      "Ranking requests by where the answer came from",
		}, []string{"source"}),
		rankingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "compute_duration_seconds",
			Help:      "Time spent scanning and aggregating one ranking window",
			Buckets:   prometheus.DefBuckets,
		}),
		inconsistencies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "inconsistencies_total",
			Help:      "Ledger invariant violations observed by readers",
		}, []string{"kind"}),

		eventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Domain events published by type",
		}, []string{"type"}),
		eventHandlers: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "handler_duration_seconds",
			Help:      "Event handler latency by type and result",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type", "result"}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open",
		}, []string{"name"}),
		jobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and result",
		}, []string{"job", "result"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Scheduled job latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"job"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// ObserveWrite records one LedgerWriter operation.
func (m *Metrics) ObserveWrite(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(op, result(err)).Inc()
	m.writeDuration.WithLabelValues(op).Observe(d.Seconds())
}

// AddXP records XP committed for an activity kind.
func (m *Metrics) AddXP(kind string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.xpAwarded.WithLabelValues(kind).Add(float64(amount))
}

// ObserveRanking records where a ranking answer came from.
func (m *Metrics) ObserveRanking(source string) {
	if m == nil {
		return
	}
	m.rankings.WithLabelValues(source).Inc()
}

// ObserveRankingCompute records the cost of one uncached computation.
func (m *Metrics) ObserveRankingCompute(d time.Duration) {
	if m == nil {
		return
	}
	m.rankingDuration.Observe(d.Seconds())
}

// Inconsistency counts an invariant violation seen by a reader.
func (m *Metrics) Inconsistency(kind string) {
	if m == nil {
		return
	}
	m.inconsistencies.WithLabelValues(kind).Inc()
}

// EventPublished counts a published domain event.
func (m *Metrics) EventPublished(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

// ObserveEventHandler records one handler execution.
func (m *Metrics) ObserveEventHandler(eventType string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.eventHandlers.WithLabelValues(eventType, result(err)).Observe(d.Seconds())
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// SetBreakerState publishes a circuit breaker transition.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

// ObserveJob records one scheduled job run.
func (m *Metrics) ObserveJob(job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, result(err)).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}
