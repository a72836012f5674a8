package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/fintrack/fintrack-go/internal/domain"
)

// Metrics holds all Prometheus metrics for the backend.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	syncedTxns      *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fintrack_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_external_errors_total",
				Help: "Total errors from the remote finance API.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_fallbacks_total",
				Help: "Times a remote call fell back to local state.",
			},
			[]string{"service"},
		),
		syncedTxns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_synced_transactions_total",
				Help: "Transactions imported through bank syncs.",
			},
			[]string{"bank"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_requests_total",
				Help: "Total requests processed.",
			},
			[]string{"status"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrFallback increments the remote-to-local fallback counter.
func (m *Metrics) IncrFallback(service string) {
	m.fallbacks.WithLabelValues(service).Inc()
}

// RecordSyncedTransactions adds imported transactions for a bank.
func (m *Metrics) RecordSyncedTransactions(bank string, count int) {
	m.syncedTxns.WithLabelValues(bank).Add(float64(count))
}

// IncrRequest increments the request counter with a status label.
func (m *Metrics) IncrRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

// MetricsMiddleware counts every request and records its latency,
// labeled by the matched route pattern. 5xx responses count as errors,
// everything else as success; those two labels feed Snapshot.
func MetricsMiddleware(metrics *Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := "success"
			if ww.Status() >= http.StatusInternalServerError {
				status = "error"
			}
			metrics.IncrRequest(status)

			// The route pattern keeps label cardinality bounded; raw
			// paths would explode on IDs.
			operation := r.Method + " " + r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				operation = r.Method + " " + rctx.RoutePattern()
			}
			metrics.RecordRequestDuration(operation, time.Since(start))
		})
	}
}

// Snapshot returns current operational counters for the
// GET /v1/metrics/summary endpoint.
func (m *Metrics) Snapshot() *domain.MetricsSnapshot {
	// Prometheus counters expose cumulative values; derive the rates here.
	success := getCounterValue(m.requestsTotal, "success")
	failed := getCounterValue(m.requestsTotal, "error")
	total := success + failed

	cacheHits := getCounterValue(m.cacheHits, "finance")
	cacheMisses := getCounterValue(m.cacheMisses, "finance")

	fallbackTotal := float64(0)
	for _, svc := range []string{"transactions", "budgets", "banking"} {
		fallbackTotal += getCounterValue(m.fallbacks, svc)
	}

	errorRate := float64(0)
	fallbackRate := float64(0)
	cacheHitRate := float64(0)
	if total > 0 {
		errorRate = failed / total
		fallbackRate = fallbackTotal / total
	}
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	return &domain.MetricsSnapshot{
		TotalRequests: int64(total),
		ErrorRate:     errorRate,
		FallbackRate:  fallbackRate,
		CacheHitRate:  cacheHitRate,
		Period:        "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
