// Package metrics defines the Prometheus collectors for the ledger service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. Each instance registers on its own
// registry so tests do not collide on the default one.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	LedgerOperations    *prometheus.CounterVec
	WalletClamps        prometheus.Counter
	ReconcileMismatches prometheus.Gauge
	CacheLookups        *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		LedgerOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger mutations by operation and result.",
		}, []string{"operation", "result"}),
		WalletClamps: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_wallet_clamps_total",
			Help: "Wallets found negative after a mutation and clamped to zero.",
		}),
		ReconcileMismatches: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_reconcile_mismatches",
			Help: "Customers whose stored balances disagreed with the journal in the last sweep.",
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_cache_lookups_total",
			Help: "Balance cache lookups by result (hit, miss).",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Operation counts one ledger mutation. err == nil counts as "ok".
func (m *Metrics) Operation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.LedgerOperations.WithLabelValues(op, result).Inc()
}

// Middleware records request count and latency. The route label is the chi
// route pattern, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
