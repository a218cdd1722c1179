package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	inference "github.com/bryanwahyu/tomvto/internal/domain/inference"
	predictions "github.com/bryanwahyu/tomvto/internal/domain/predictions"
)

const namespace = "tomvto"

// Metrics holds the Prometheus collectors for HTTP, store and ML service traffic.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	requestsInProgress prometheus.Gauge

	storeOpsTotal   *prometheus.CounterVec
	storeOpDuration *prometheus.HistogramVec

	mlCallsTotal   *prometheus.CounterVec
	mlCallDuration *prometheus.HistogramVec
	mlFallbacks    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on registry.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		requestsInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_in_progress",
			Help: "HTTP requests currently being served.",
		}),
		storeOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "operations_total",
			Help: "Prediction store operations by outcome.",
		}, []string{"op", "outcome"}),
		storeOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "store", Name: "operation_duration_seconds",
			Help:    "Prediction store operation latency, lock wait included.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"op"}),
		mlCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ml", Name: "calls_total",
			Help: "Calls to the ML service by outcome.",
		}, []string{"endpoint", "outcome"}),
		mlCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "ml", Name: "call_duration_seconds",
			Help:    "ML service call latency.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		mlFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ml", Name: "fallbacks_total",
			Help: "Locally generated results served instead of ML service output.",
		}, []string{"endpoint"}),
	}

	for _, c := range []prometheus.Collector{
		m.requestsTotal, m.requestDuration, m.requestsInProgress,
		m.storeOpsTotal, m.storeOpDuration,
		m.mlCallsTotal, m.mlCallDuration, m.mlFallbacks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Middleware tracks request counts and latency per chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requestsInProgress.Inc()
		defer m.requestsInProgress.Dec()

		start := time.Now()
		wrapped := wrapResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveStore(op string, err error, d time.Duration) {
	m.storeOpsTotal.WithLabelValues(op, storeOutcome(err)).Inc()
	m.storeOpDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) ObserveCall(endpoint string, err error, d time.Duration) {
	m.mlCallsTotal.WithLabelValues(endpoint, callOutcome(err)).Inc()
	m.mlCallDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) ObserveFallback(endpoint string) {
	m.mlFallbacks.WithLabelValues(endpoint).Inc()
}

func storeOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, predictions.ErrNotFound):
		return "not_found"
	case errors.Is(err, predictions.ErrValidation):
		return "invalid"
	case errors.Is(err, predictions.ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "error"
	}
}

func callOutcome(err error) string {
	var se *inference.ServiceError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, inference.ErrServiceUnavailable):
		return "unavailable"
	case errors.As(err, &se):
		return "service_error"
	default:
		return "error"
	}
}
