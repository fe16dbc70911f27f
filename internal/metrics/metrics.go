// Package metrics exposes prometheus collectors for the synchronization core.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing,
// so packages can accept one without forcing tests to build a registry.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests     *prometheus.CounterVec
	apiDuration     *prometheus.HistogramVec
	tokenRefreshes  *prometheus.CounterVec
	cacheReads      *prometheus.CounterVec
	cacheFetches    *prometheus.CounterVec
	storeMutations  *prometheus.CounterVec
	throttleDropped prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_api_requests_total",
				Help: "Backend requests by method and status code (0 for transport failures).",
			},
			[]string{"method", "code"},
		),
		apiDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storefront_api_request_duration_seconds",
				Help:    "Backend request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		tokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_token_refreshes_total",
				Help: "Access token refresh attempts by result.",
			},
			[]string{"result"},
		),
		cacheReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_cache_reads_total",
				Help: "Resource cache reads by result (hit or miss).",
			},
			[]string{"result"},
		),
		cacheFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_cache_fetches_total",
				Help: "Resource cache revalidations by outcome.",
			},
			[]string{"outcome"},
		),
		storeMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_store_operations_total",
				Help: "Domain store operations by store, operation and result.",
			},
			[]string{"store", "op", "result"},
		),
		throttleDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "storefront_throttle_dropped_total",
				Help: "Quantity changes absorbed by the throttle window.",
			},
		),
	}
	reg.MustRegister(
		m.apiRequests,
		m.apiDuration,
		m.tokenRefreshes,
		m.cacheReads,
		m.cacheFetches,
		m.storeMutations,
		m.throttleDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveAPI records one backend round trip.
func (m *Metrics) ObserveAPI(method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.apiDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// TokenRefresh records a refresh outcome ("success" or "failure").
func (m *Metrics) TokenRefresh(result string) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(result).Inc()
}

// CacheRead records a hit or miss.
func (m *Metrics) CacheRead(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheReads.WithLabelValues(result).Inc()
}

// CacheFetch records a revalidation outcome.
func (m *Metrics) CacheFetch(outcome string) {
	if m == nil {
		return
	}
	m.cacheFetches.WithLabelValues(outcome).Inc()
}

// StoreOp records a domain store operation.
func (m *Metrics) StoreOp(store, op string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.storeMutations.WithLabelValues(store, op, result).Inc()
}

// ThrottleDropped records a change absorbed by the throttle gate.
func (m *Metrics) ThrottleDropped() {
	if m == nil {
		return
	}
	m.throttleDropped.Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.String("addr", addr), slog.String("error", err.Error()))
		}
	}()
}
