package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate on the ops surface.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request.
	HTTPRequestDuration *prometheus.HistogramVec

	// OpenWeatherMap API call rate. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// External API latency per request. Watch for: p95 near the client timeout.
	WeatherAPIDuration *prometheus.HistogramVec

	// Fetch failures by category (fetch, parse, data, unexpected).
	FetchErrorsTotal *prometheus.CounterVec

	// Cache hits for provider responses, by backend.
	CacheHitsTotal *prometheus.CounterVec

	// Storage batches by designation and outcome. Watch for: failure kind other than "ok".
	StorageWritesTotal *prometheus.CounterVec

	// Time spent in one BulkStoreData call.
	StorageWriteDuration *prometheus.HistogramVec

	// Pipeline runs by status (success, cities_error, fetch_error, mapping_error, busy).
	PipelineRunsTotal *prometheus.CounterVec

	// Wall time of a whole run.
	PipelineRunDuration prometheus.Histogram

	// Records produced by the last successful run.
	RecordsCollected prometheus.Gauge

	// Unix time of the last successful run. Watch for: staleness beyond the schedule interval.
	LastSuccessfulRun prometheus.Gauge
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
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	FetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchErrorsTotal",
			Help: "Weather fetch failures by category",
		},
		[]string{"category"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of provider response cache hits",
		},
		[]string{"cacheType"},
	)
	StorageWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storageWritesTotal",
			Help: "Storage batches by designation and outcome",
		},
		[]string{"designation", "status"},
	)
	StorageWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storageWriteDurationSeconds",
			Help:    "Duration of one storage batch in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"designation"},
	)
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipelineRunsTotal",
			Help: "Collection runs by status",
		},
		[]string{"status"},
	)
	PipelineRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipelineRunDurationSeconds",
			Help:    "Duration of a collection run in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	RecordsCollected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "recordsCollected",
			Help: "Records produced by the last successful run",
		},
	)
	LastSuccessfulRun = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lastSuccessfulRunTimestampSeconds",
			Help: "Unix time of the last successful run",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration,
		WeatherAPICallsTotal, WeatherAPIDuration, FetchErrorsTotal,
		CacheHitsTotal,
		StorageWritesTotal, StorageWriteDuration,
		PipelineRunsTotal, PipelineRunDuration, RecordsCollected, LastSuccessfulRun,
	)
}

// Registry exposes the application registry for pushing.
func Registry() *prometheus.Registry {
	return registry
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
