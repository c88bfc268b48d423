package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry          *prometheus.Registry
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	commands          *prometheus.CounterVec
	commandDuration   *prometheus.HistogramVec
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	reconnects        *prometheus.CounterVec
	appCacheHits      prometheus.Counter
	appCacheMisses    prometheus.Counter
	appScans          *prometheus.CounterVec
}

// New creates a fresh Metrics registry with HTTP, command and cache metrics
// registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "homecontrol",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "homecontrol",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "homecontrol",
		Name:      "device_commands_total",
		Help:      "Low-level device commands issued, by type and result",
	}, []string{"device", "type", "result"})

	commandDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "homecontrol",
		Name:      "device_command_duration_seconds",
		Help:      "Duration of low-level device commands",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 8},
	}, []string{"type"})

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "homecontrol",
		Name:      "operations_total",
		Help:      "Intent-level operations, by operation and result",
	}, []string{"operation", "result"})

	operationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "homecontrol",
		Name:      "operation_duration_seconds",
		Help:      "Duration of intent-level operations end to end",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 40},
	}, []string{"operation"})

	reconnects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "homecontrol",
		Name:      "device_reconnects_total",
		Help:      "Connection invalidations that forced a reconnect",
	}, []string{"device"})

	appCacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "homecontrol",
		Name:      "app_cache_hits_total",
		Help:      "App inventory reads served from cache",
	})

	appCacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "homecontrol",
		Name:      "app_cache_misses_total",
		Help:      "App inventory reads that required a device scan",
	})

	appScans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "homecontrol",
		Name:      "app_scans_total",
		Help:      "Device app inventory scans performed",
	}, []string{"device"})

	registry.MustRegister(
		httpRequests,
		httpDuration,
		commands,
		commandDuration,
		operations,
		operationDuration,
		reconnects,
		appCacheHits,
		appCacheMisses,
		appScans,
	)

	return &Metrics{
		registry:          registry,
		httpRequests:      httpRequests,
		httpDuration:      httpDuration,
		commands:          commands,
		commandDuration:   commandDuration,
		operations:        operations,
		operationDuration: operationDuration,
		reconnects:        reconnects,
		appCacheHits:      appCacheHits,
		appCacheMisses:    appCacheMisses,
		appScans:          appScans,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpDuration.With(labels).Observe(duration.Seconds())
}

// ObserveCommand records one low-level device command.
func (m *Metrics) ObserveCommand(device, cmdType, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(device, cmdType, result).Inc()
	m.commandDuration.WithLabelValues(cmdType).Observe(duration.Seconds())
}

// ObserveOperation records one intent-level operation.
func (m *Metrics) ObserveOperation(operation, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveReconnect counts a forced connection invalidation.
func (m *Metrics) ObserveReconnect(device string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(device).Inc()
}

// ObserveAppCache counts a cache hit or miss.
func (m *Metrics) ObserveAppCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.appCacheHits.Inc()
	} else {
		m.appCacheMisses.Inc()
	}
}

// ObserveAppScan counts an inventory scan.
func (m *Metrics) ObserveAppScan(device string) {
	if m == nil {
		return
	}
	m.appScans.WithLabelValues(device).Inc()
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
