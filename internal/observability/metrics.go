package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the ledger service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	postingsTotal         *prometheus.CounterVec
	materializationsTotal *prometheus.CounterVec
	integrityViolations   prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atrium_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_journal_transitions_total",
		Help: "Journal entry lifecycle transitions by target status.",
	}, []string{"status"})
	materializations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_schedule_materializations_total",
		Help: "Recurring schedule materializations by outcome.",
	}, []string{"outcome"})
	integrity := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atrium_ledger_integrity_violations_total",
		Help: "Structurally impossible ledger states observed at read time.",
	})
	registry.MustRegister(requests, duration, postings, materializations, integrity)
	return &Metrics{
		registry:              registry,
		handler:               promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:         requests,
		requestDuration:       duration,
		postingsTotal:         postings,
		materializationsTotal: materializations,
		integrityViolations:   integrity,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// JournalTransition counts a successful lifecycle transition.
func (m *Metrics) JournalTransition(status string) {
	if m == nil {
		return
	}
	m.postingsTotal.WithLabelValues(status).Inc()
}

// ScheduleMaterialization counts a materialization attempt outcome.
func (m *Metrics) ScheduleMaterialization(outcome string) {
	if m == nil {
		return
	}
	m.materializationsTotal.WithLabelValues(outcome).Inc()
}

// IntegrityViolation counts an observed ledger integrity violation.
func (m *Metrics) IntegrityViolation() {
	if m == nil {
		return
	}
	m.integrityViolations.Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
