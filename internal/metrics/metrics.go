// Package metrics exposes the provider-layer Prometheus instruments. This
// package is internal; the surrounding application mounts the default
// registry on its own /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmcore",
			Name:      "provider_requests_total",
			Help:      "Upstream provider calls by provider, operation and outcome.",
		},
		[]string{"provider", "op", "outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "llmcore",
			Name:      "provider_request_duration_seconds",
			Help:      "Upstream provider call latency.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "op"},
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmcore",
			Name:      "router_fallbacks_total",
			Help:      "Fallback advances from one provider to the next.",
		},
		[]string{"from", "to"},
	)

	cacheEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmcore",
			Name:      "cache_events_total",
			Help:      "Response/embedding cache hits and misses by kind.",
		},
		[]string{"kind", "event"},
	)
)

// ObserveRequest records one upstream call.
func ObserveRequest(provider, op string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	requestsTotal.WithLabelValues(provider, op, outcome).Inc()
	requestDuration.WithLabelValues(provider, op).Observe(d.Seconds())
}

// RecordFallback records the router advancing from one provider to another.
func RecordFallback(from, to string) {
	fallbacksTotal.WithLabelValues(from, to).Inc()
}

// RecordCacheHit records a cache hit for the given kind ("chat", "embedding").
func RecordCacheHit(kind string) {
	cacheEventsTotal.WithLabelValues(kind, "hit").Inc()
}

// RecordCacheMiss records a cache miss for the given kind.
func RecordCacheMiss(kind string) {
	cacheEventsTotal.WithLabelValues(kind, "miss").Inc()
}
