// Package metrics provides Vesta's Prometheus instrumentation for the
// dispatch engine: request counters and latency histograms, proxy forward
// counters, and timeout/exception counters, plus a cron-scheduled
// dispatch summary log line.
package metrics

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config contains configuration for the metrics collector.
type Config struct {
	// Namespace is the Prometheus metric namespace. Default: "vesta".
	Namespace string

	// Subsystem is the Prometheus metric subsystem. Default: "dispatch".
	Subsystem string

	// DurationBuckets are the request-duration histogram buckets in
	// seconds. Defaults cover 1ms to 30s.
	DurationBuckets []float64
}

// Collector owns all dispatch metrics and their Prometheus registry.
// Every record method is safe on a nil receiver, so instrumentation can
// be disabled by simply not constructing a collector.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	proxiedTotal    *prometheus.CounterVec
	timeoutsTotal   prometheus.Counter
	exceptionsTotal *prometheus.CounterVec

	// Running totals for the periodic dispatch summary.
	served atomic.Int64
	failed atomic.Int64
}

// NewCollector creates a collector and registers its metrics. A nil
// registry creates a private one.
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "vesta"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "dispatch"
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0}
	}

	c := &Collector{
		registry: registry,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of dispatched requests",
			},
			[]string{"method", "status", "outcome"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of request dispatch in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"method", "outcome"},
		),

		proxiedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "proxied_total",
				Help:      "Total number of cross-worker proxy forwards",
			},
			[]string{"group", "result"},
		),

		timeoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "timeouts_total",
				Help:      "Total number of handler invocations that exceeded their deadline",
			},
		),

		exceptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "exceptions_total",
				Help:      "Total number of failures routed through the exception funnel",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.proxiedTotal,
		c.timeoutsTotal,
		c.exceptionsTotal,
	)
	return c
}

// Registry returns the collector's Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveRequest records a finalized request.
func (c *Collector) ObserveRequest(method string, status int, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(method, strconv.Itoa(status), outcome).Inc()
	c.requestDuration.WithLabelValues(method, outcome).Observe(d.Seconds())
	c.served.Add(1)
	if status >= 500 {
		c.failed.Add(1)
	}
}

// RecordProxyForward records one cross-worker forward attempt.
func (c *Collector) RecordProxyForward(group string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.proxiedTotal.WithLabelValues(group, result).Inc()
}

// RecordTimeout records a handler deadline breach.
func (c *Collector) RecordTimeout() {
	if c == nil {
		return
	}
	c.timeoutsTotal.Inc()
}

// RecordException records a failure reaching the exception funnel.
func (c *Collector) RecordException(code string) {
	if c == nil {
		return
	}
	c.exceptionsTotal.WithLabelValues(code).Inc()
}
