package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, shutdown drain.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream locationforecast call rate. Watch for: error vs success ratio.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency per request. Watch for: p95 > 2s (upstream degradation).
	UpstreamDuration *prometheus.HistogramVec

	// Cache hits on the raw-payload cache. Hit rate = hits/(hits+upstream calls).
	CacheHitsTotal prometheus.Counter

	// LRU evictions. Watch for: max_entries sized too small for the location set.
	CacheEvictionsTotal prometheus.Counter

	// Forecast lookups served. Labelled by source: live, cache, synthetic.
	ForecastRequestsTotal *prometheus.CounterVec

	// Synthetic fallbacks. Any sustained rate means the upstream is down.
	SyntheticFallbacksTotal prometheus.Counter

	// Timeseries entries dropped because their timestamp would not parse.
	MalformedEntriesTotal prometheus.Counter

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Archive write failures. The forecast path is unaffected; history is lossy.
	ArchiveErrorsTotal prometheus.Counter

	// Circuit breaker transitions for the upstream. Labelled from/to state.
	BreakerTransitionsTotal *prometheus.CounterVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of locationforecast upstream calls",
		},
		[]string{"status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Locationforecast upstream latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of raw-payload cache hits",
		},
	)
	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheEvictionsTotal",
			Help: "Total number of LRU cache evictions",
		},
	)
	ForecastRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastRequestsTotal",
			Help: "Forecast lookups by data source (live, cache, synthetic)",
		},
		[]string{"source"},
	)
	SyntheticFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "syntheticFallbacksTotal",
			Help: "Total number of forecasts served from the synthetic fallback",
		},
	)
	MalformedEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "malformedEntriesTotal",
			Help: "Timeseries entries skipped due to unparsable timestamps",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	ArchiveErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "archiveErrorsTotal",
			Help: "Total number of failed forecast archive writes",
		},
	)
	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakerTransitionsTotal",
			Help: "Upstream circuit breaker state transitions",
		},
		[]string{"from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration,
		CacheHitsTotal, CacheEvictionsTotal,
		ForecastRequestsTotal, SyntheticFallbacksTotal, MalformedEntriesTotal,
		RateLimitDeniedTotal, ArchiveErrorsTotal, BreakerTransitionsTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
