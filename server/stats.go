// Prometheus metrics: HTTP requests by route, coordinator events, calls to the video
// platform, room store connection pool and build info.

package main

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rds "github.com/redis/go-redis/v9"

	"github.com/vidroom/vidroom/server/logs"
)

const metricsNamespace = "vidroom"

type metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	events         *prometheus.CounterVec
	providerCalls  *prometheus.HistogramVec
	providerErrors *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Sessions created, tokens issued, archives started and stopped.",
		}, []string{"event"}),
		providerCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Duration of calls to the video platform.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "provider_errors_total",
			Help:      "Failed calls to the video platform.",
		}, []string{"op"}),
	}

	m.registry.MustRegister(
		m.requests, m.events, m.providerCalls, m.providerErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		versioncollector.NewCollector(metricsNamespace),
	)
	return m
}

// registerDbStats exports statistics of the room store. stats is the callback returned by
// store.DbStats and may be nil.
func (m *metrics) registerDbStats(adapterName string, stats func() interface{}) {
	if stats == nil {
		return
	}
	m.registry.MustRegister(newDbStatsCollector(adapterName, stats))
}

// Event implements coordinator.Observer.
func (m *metrics) Event(name string) {
	m.events.WithLabelValues(name).Inc()
}

// ProviderCall implements coordinator.Observer.
func (m *metrics) ProviderCall(op string, took time.Duration, err error) {
	m.providerCalls.WithLabelValues(op).Observe(took.Seconds())
	if err != nil {
		m.providerErrors.WithLabelValues(op).Inc()
	}
}

// handler serves the metrics in Prometheus exposition format.
func (m *metrics) handler() http.Handler {
	return promhttp.InstrumentMetricHandler(m.registry,
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{ErrorLog: logs.Err}))
}

// instrument counts requests by the matched route pattern.
func (m *metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
	})
}

// statusWriter records the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// dbStatsCollector reads the adapter stats on every scrape. Adapters without stats
// produce no samples.
type dbStatsCollector struct {
	stats func() interface{}

	open  *prometheus.Desc
	inUse *prometheus.Desc
	idle  *prometheus.Desc
	waits *prometheus.Desc
	rooms *prometheus.Desc
}

func newDbStatsCollector(adapterName string, stats func() interface{}) *dbStatsCollector {
	labels := prometheus.Labels{"adapter": adapterName}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "db", name), help, nil, labels)
	}
	return &dbStatsCollector{
		stats: stats,
		open:  desc("open_connections", "Established connections to the room store."),
		inUse: desc("in_use_connections", "Connections to the room store currently in use."),
		idle:  desc("idle_connections", "Idle connections to the room store."),
		waits: desc("wait_count_total", "Times a request waited for a free connection."),
		rooms: desc("rooms", "Rooms held by the in-memory store."),
	}
}

// Describe implements prometheus.Collector.
func (c *dbStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.open
	ch <- c.inUse
	ch <- c.idle
	ch <- c.waits
	ch <- c.rooms
}

// Collect implements prometheus.Collector.
func (c *dbStatsCollector) Collect(ch chan<- prometheus.Metric) {
	switch st := c.stats().(type) {
	case sql.DBStats:
		c.pool(ch, st.OpenConnections, st.InUse, st.Idle, st.WaitCount)
	case *pgxpool.Stat:
		c.pool(ch, int(st.TotalConns()), int(st.AcquiredConns()), int(st.IdleConns()), st.EmptyAcquireCount())
	case *rds.PoolStats:
		c.pool(ch, int(st.TotalConns), int(st.TotalConns-st.IdleConns), int(st.IdleConns), int64(st.Misses))
	case map[string]int:
		if n, ok := st["rooms"]; ok {
			ch <- prometheus.MustNewConstMetric(c.rooms, prometheus.GaugeValue, float64(n))
		}
	}
}

func (c *dbStatsCollector) pool(ch chan<- prometheus.Metric, open, inUse, idle int, waits int64) {
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(open))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(inUse))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(idle))
	ch <- prometheus.MustNewConstMetric(c.waits, prometheus.CounterValue, float64(waits))
}
