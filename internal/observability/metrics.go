package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the API and the settlement engine.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	settlements     *prometheus.CounterVec
	integrityErrors *prometheus.CounterVec
	indexDefaults   *prometheus.CounterVec
}

// NewMetrics initialises the registry and its collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aluga_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aluga_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aluga_settlements_computed_total",
		Help: "Settlements computed by resulting status and whether the net is negative.",
	}, []string{"status", "negative_net"})
	integrity := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aluga_ownership_integrity_errors_total",
		Help: "Ownership integrity failures by kind.",
	}, []string{"kind"})
	indexDefaults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aluga_accrual_index_defaulted_total",
		Help: "Monetary index lookups that fell back to zero.",
	}, []string{"index", "reason"})
	registry.MustRegister(requests, duration, settlements, integrity, indexDefaults)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		settlements:     settlements,
		integrityErrors: integrity,
		indexDefaults:   indexDefaults,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency.
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

// ObserveSettlement counts a persisted computation.
func (m *Metrics) ObserveSettlement(status string, negativeNet bool) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(status, strconv.FormatBool(negativeNet)).Inc()
}

// ObserveIntegrityError counts an ownership integrity failure.
func (m *Metrics) ObserveIntegrityError(kind string) {
	if m == nil {
		return
	}
	m.integrityErrors.WithLabelValues(kind).Inc()
}

// ObserveIndexDefault counts an index lookup that degraded to zero.
func (m *Metrics) ObserveIndexDefault(index, reason string) {
	if m == nil {
		return
	}
	m.indexDefaults.WithLabelValues(index, reason).Inc()
}

// Registerer exposes the registry for additional collectors.
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
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
