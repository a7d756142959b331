// Package metrics exposes Prometheus metrics for external tool invocations,
// lifecycle mutations and HTTP requests.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmcleod/sslinker/audit"
	"github.com/jmcleod/sslinker/internal/toolexec"
)

// DefaultNamespace prefixes every metric name when none is configured.
const DefaultNamespace = "sslinker"

// Tool invocation results.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultTimeout = "timeout"
)

// Collector owns a registry and the metric vectors registered on it.
type Collector struct {
	registry *prometheus.Registry

	toolInvocations *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	lifecycleOps    *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// NewCollector registers the SSLinker metrics on registry. A nil registry
// gets a fresh one; an empty namespace uses DefaultNamespace.
func NewCollector(namespace string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{
		registry: registry,
		toolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tool",
			Name:      "invocations_total",
			Help:      "External tool invocations by tool and result.",
		}, []string{"tool", "result"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tool",
			Name:      "duration_seconds",
			Help:      "Wall time spent waiting on external tools.",
			// RSA-4096 generation can take several seconds.
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"tool"}),
		lifecycleOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "operations_total",
			Help:      "Certificate and proxy lifecycle mutations by action and outcome.",
		}, []string{"action", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	registry.MustRegister(
		c.toolInvocations,
		c.toolDuration,
		c.lifecycleOps,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// ObserveTool records one tool invocation. Its signature matches
// toolexec.Observer.
func (c *Collector) ObserveTool(tool string, elapsed time.Duration, err error) {
	result := ResultOK
	if err != nil {
		result = ResultFailed
		var execErr *toolexec.Error
		if errors.As(err, &execErr) && execErr.TimedOut {
			result = ResultTimeout
		}
	}
	c.toolInvocations.WithLabelValues(tool, result).Inc()
	c.toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// RecordLifecycle counts one lifecycle mutation.
func (c *Collector) RecordLifecycle(action audit.Action, outcome audit.Outcome) {
	c.lifecycleOps.WithLabelValues(string(action), string(outcome)).Inc()
}

// Middleware records request counts and latency labelled with the chi route
// pattern, so path parameters do not inflate cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the Prometheus exposition handler for the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
