// Package prommetrics implements the observability hooks with Prometheus
// collectors and exposes them over HTTP.
package prommetrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matzehuels/depscanner/pkg/observability"
)

const namespace = "depscanner"

// Metrics holds every collector and satisfies all hook interfaces.
type Metrics struct {
	ScansTotal       *prometheus.CounterVec
	ScanDuration     prometheus.Histogram
	ScanNodes        *prometheus.CounterVec
	ScansInProgress  prometheus.Gauge
	NodeDuration     *prometheus.HistogramVec
	ResolveTotal     *prometheus.CounterVec
	CacheTotal       *prometheus.CounterVec
	CacheBytes       prometheus.Counter
	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	BreakerState     *prometheus.GaugeVec
	BreakerRejected  *prometheus.CounterVec
	APIRequests      *prometheus.CounterVec
	APIDuration      *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh registry that also carries the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}
	m := &Metrics{gatherer: reg}

	m.ScansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "scans_total",
		Help: "Completed scans by outcome.",
	}, []string{"outcome"})
	m.ScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "scan_duration_seconds",
		Help:    "Wall time of a full graph traversal.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	})
	m.ScanNodes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "scan_nodes_total",
		Help: "Nodes visited by scans, by result.",
	}, []string{"result"})
	m.ScansInProgress = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "scans_in_progress",
		Help: "Scans currently traversing.",
	})
	m.NodeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "node_resolve_duration_seconds",
		Help:    "Time to resolve one node, by ecosystem.",
		Buckets: prometheus.DefBuckets,
	}, []string{"system"})
	m.ResolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "resolve_total",
		Help: "Resolver lookups by entity kind and source.",
	}, []string{"kind", "source"})
	m.CacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "response_cache_total",
		Help: "Upstream response cache lookups.",
	}, []string{"endpoint", "result"})
	m.CacheBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "response_cache_written_bytes_total",
		Help: "Bytes written to the response cache.",
	})
	m.UpstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "upstream_requests_total",
		Help: "Upstream API calls by endpoint and status.",
	}, []string{"host", "endpoint", "status"})
	m.UpstreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "upstream_request_duration_seconds",
		Help:    "Upstream API latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"host", "endpoint"})
	m.BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"name"})
	m.BreakerRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "breaker_rejected_total",
		Help: "Calls short-circuited by an open breaker.",
	}, []string{"name"})
	m.APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "http_requests_total",
		Help: "Query API requests.",
	}, []string{"method", "route", "status"})
	m.APIDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "http_request_duration_seconds",
		Help:    "Query API latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	reg.MustRegister(
		m.ScansTotal, m.ScanDuration, m.ScanNodes, m.ScansInProgress, m.NodeDuration,
		m.ResolveTotal, m.CacheTotal, m.CacheBytes,
		m.UpstreamRequests, m.UpstreamDuration,
		m.BreakerState, m.BreakerRejected,
		m.APIRequests, m.APIDuration,
	)
	return m
}

// Install registers m as every observability hook.
func (m *Metrics) Install() {
	observability.SetScanHooks(m)
	observability.SetResolveHooks(m)
	observability.SetCacheHooks(m)
	observability.SetHTTPHooks(m)
	observability.SetBreakerHooks(m)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records API request counts and latency, labelled by the chi
// route pattern rather than the raw path.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.APIRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		m.APIDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Scan hooks.

func (m *Metrics) OnScanStart(ctx context.Context, scanID string, roots int) {
	m.ScansInProgress.Inc()
}

func (m *Metrics) OnNode(ctx context.Context, system string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.ScanNodes.WithLabelValues(result).Inc()
	m.NodeDuration.WithLabelValues(system).Observe(d.Seconds())
}

func (m *Metrics) OnScanComplete(ctx context.Context, scanID string, stats observability.ScanStats, d time.Duration, err error) {
	m.ScansInProgress.Dec()
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case stats.Vulnerable > 0:
		outcome = "vulnerable"
	}
	m.ScansTotal.WithLabelValues(outcome).Inc()
	m.ScanDuration.Observe(d.Seconds())
}

// Resolve hooks.

func (m *Metrics) OnResolve(ctx context.Context, kind, source string) {
	m.ResolveTotal.WithLabelValues(kind, source).Inc()
}

// Cache hooks.

func (m *Metrics) OnCacheHit(ctx context.Context, keyType string) {
	m.CacheTotal.WithLabelValues(keyType, "hit").Inc()
}

func (m *Metrics) OnCacheMiss(ctx context.Context, keyType string) {
	m.CacheTotal.WithLabelValues(keyType, "miss").Inc()
}

func (m *Metrics) OnCacheSet(ctx context.Context, keyType string, size int) {
	m.CacheBytes.Add(float64(size))
}

// HTTP hooks.

func (m *Metrics) OnRequest(ctx context.Context, method, host, endpoint string) {}

func (m *Metrics) OnResponse(ctx context.Context, method, host, endpoint string, status int, d time.Duration) {
	m.UpstreamRequests.WithLabelValues(host, endpoint, strconv.Itoa(status)).Inc()
	m.UpstreamDuration.WithLabelValues(host, endpoint).Observe(d.Seconds())
}

func (m *Metrics) OnError(ctx context.Context, method, host, endpoint string, err error) {
	m.UpstreamRequests.WithLabelValues(host, endpoint, "error").Inc()
}

// Breaker hooks.

func (m *Metrics) OnStateChange(name, from, to string) {
	var v float64
	switch to {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	m.BreakerState.WithLabelValues(name).Set(v)
}

func (m *Metrics) OnRejected(ctx context.Context, name string) {
	m.BreakerRejected.WithLabelValues(name).Inc()
}

var (
	_ observability.ScanHooks    = (*Metrics)(nil)
	_ observability.ResolveHooks = (*Metrics)(nil)
	_ observability.CacheHooks   = (*Metrics)(nil)
	_ observability.HTTPHooks    = (*Metrics)(nil)
	_ observability.BreakerHooks = (*Metrics)(nil)
)
