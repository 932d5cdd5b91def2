package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the registry
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Download counting metrics
	DownloadsRecordedTotal prometheus.Counter
	PendingEntries         prometheus.Gauge
	PendingDownloads       prometheus.Gauge

	// Flush metrics
	FlushCyclesTotal        *prometheus.CounterVec
	FlushDuration           prometheus.Histogram
	FlushPersistedTotal     prometheus.Counter
	FlushShardFailuresTotal prometheus.Counter

	// Catalog lookup metrics
	CatalogLookupsTotal *prometheus.CounterVec
	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "registry_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		DownloadsRecordedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "registry_downloads_recorded_total",
				Help: "Total number of download events recorded in memory",
			},
		),
		PendingEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "registry_downloads_pending_entries",
				Help: "Number of (version, day) entries awaiting flush",
			},
		),
		PendingDownloads: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "registry_downloads_pending_total",
				Help: "Sum of download counts awaiting flush",
			},
		),

		FlushCyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_flush_cycles_total",
				Help: "Total number of flush cycles",
			},
			[]string{"status"},
		),
		FlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "registry_flush_duration_seconds",
				Help:    "Duration of a full flush cycle in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		FlushPersistedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "registry_flush_persisted_downloads_total",
				Help: "Total download count durably persisted by flushes",
			},
		),
		FlushShardFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "registry_flush_shard_failures_total",
				Help: "Total number of per-shard flush failures",
			},
		),

		CatalogLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_catalog_lookups_total",
				Help: "Total number of catalog lookups",
			},
			[]string{"result"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_cache_hits_total",
				Help: "Total number of lookup cache hits",
			},
			[]string{"tier"},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "registry_cache_misses_total",
				Help: "Total number of lookup cache misses",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "registry_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "registry_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DownloadsRecordedTotal,
		m.PendingEntries,
		m.PendingDownloads,
		m.FlushCyclesTotal,
		m.FlushDuration,
		m.FlushPersistedTotal,
		m.FlushShardFailuresTotal,
		m.CatalogLookupsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFlush records the outcome of one flush cycle
func (m *Metrics) ObserveFlush(persisted int64, shardFailures int, duration time.Duration) {
	status := "success"
	if shardFailures > 0 {
		status = "partial_failure"
	}
	m.FlushCyclesTotal.WithLabelValues(status).Inc()
	m.FlushDuration.Observe(duration.Seconds())
	m.FlushPersistedTotal.Add(float64(persisted))
	m.FlushShardFailuresTotal.Add(float64(shardFailures))
}

// InstrumentHandler wraps an HTTP handler with request count and duration metrics.
// The path label is the route template, not the raw URL, to bound cardinality.
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
