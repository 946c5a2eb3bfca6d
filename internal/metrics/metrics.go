// Package metrics exposes Prometheus counters and histograms for the API,
// the intent pipeline and ledger event publishing. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	intentsTotal      *prometheus.CounterVec
	oracleDuration    prometheus.Histogram
	transactionsTotal *prometheus.CounterVec
	clearsTotal       prometheus.Counter
	eventsTotal       *prometheus.CounterVec
	exportsTotal      *prometheus.CounterVec
	rateLimitedTotal  prometheus.Counter
	suspiciousTotal   prometheus.Counter
}

// New registers every collector on a private registry, so several instances
// can coexist in one process.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		intentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_intents_total",
			Help: "Resolved intents by kind and by the path that produced them.",
		}, []string{"kind", "source"}),
		oracleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tally_oracle_duration_seconds",
			Help:    "Histogram of intent resolution latency for messages sent to the oracle.",
			Buckets: prometheus.DefBuckets,
		}),
		transactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_transactions_recorded_total",
			Help: "Transactions appended to the ledger by entity and kind.",
		}, []string{"entity", "kind"}),
		clearsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tally_ledger_clears_total",
			Help: "Total ledger clear operations.",
		}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_events_published_total",
			Help: "Ledger events published to the broker by type and outcome.",
		}, []string{"type", "outcome"}),
		exportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_sheet_exports_total",
			Help: "Ledger events exported to the spreadsheet by type and outcome.",
		}, []string{"type", "outcome"}),
		rateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tally_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter.",
		}),
		suspiciousTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tally_suspicious_requests_total",
			Help: "Requests flagged by the security detector.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.intentsTotal,
		m.oracleDuration,
		m.transactionsTotal,
		m.clearsTotal,
		m.eventsTotal,
		m.exportsTotal,
		m.rateLimitedTotal,
		m.suspiciousTotal,
	)

	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests and observes latency under a fixed route label
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Intent(kind, source string) {
	if m == nil {
		return
	}
	m.intentsTotal.WithLabelValues(kind, source).Inc()
}

func (m *Metrics) OracleLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.oracleDuration.Observe(d.Seconds())
}

func (m *Metrics) TransactionRecorded(entity, kind string) {
	if m == nil {
		return
	}
	m.transactionsTotal.WithLabelValues(entity, kind).Inc()
}

func (m *Metrics) LedgerCleared() {
	if m == nil {
		return
	}
	m.clearsTotal.Inc()
}

func (m *Metrics) EventPublished(eventType string, err error) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(eventType, outcome(err)).Inc()
}

func (m *Metrics) EventExported(eventType string, err error) {
	if m == nil {
		return
	}
	m.exportsTotal.WithLabelValues(eventType, outcome(err)).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimitedTotal.Inc()
}

func (m *Metrics) SuspiciousRequest() {
	if m == nil {
		return
	}
	m.suspiciousTotal.Inc()
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
