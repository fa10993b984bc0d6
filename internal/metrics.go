package internal

import (
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
)

var _metricsNamespace = "alexandria"

// NewMetrics creates a new prometheus registry with default collectors
// already registered, same shape as the teacher's internal/metrics.go.
func NewMetrics() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: _metricsNamespace}),
		collectors.NewBuildInfoCollector(),
	)
	return reg
}

var _patternRE = regexp.MustCompile(`\{[^/]+\}`)

// cacheMetrics tracks the HTTP Client's cache hit/miss ratio (spec.md §4.1).
type cacheMetrics struct {
	totals *prometheus.CounterVec
}

// CacheMetrics is the exported name for cacheMetrics, for callers outside
// this package that only need to hold and pass the handle along.
type CacheMetrics = cacheMetrics

// NewCacheMetrics exposes newCacheMetrics to the main wiring code.
func NewCacheMetrics(reg *prometheus.Registry) *CacheMetrics {
	return newCacheMetrics(reg)
}

func newCacheMetrics(reg *prometheus.Registry) *cacheMetrics {
	totals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: _metricsNamespace,
		Subsystem: "cache",
		Name:      "total",
		Help:      "Totals for the HTTP client's response cache.",
	}, []string{"type"})
	if reg != nil {
		reg.MustRegister(totals)
	}
	return &cacheMetrics{totals: totals}
}

func (cm *cacheMetrics) cacheHitInc()  { cm.totals.WithLabelValues("hits").Inc() }
func (cm *cacheMetrics) cacheMissInc() { cm.totals.WithLabelValues("misses").Inc() }

func (cm *cacheMetrics) cacheHitGet() int64 {
	m := &dto.Metric{}
	if err := cm.totals.WithLabelValues("hits").Write(m); err != nil {
		return 0
	}
	return int64(m.GetCounter().GetValue())
}

// quotaMetrics tracks quota usage and breaker trips (spec.md §4.5).
type quotaMetrics struct {
	used    *prometheus.GaugeVec
	tripped *prometheus.CounterVec
}

func newQuotaMetrics(reg *prometheus.Registry) *quotaMetrics {
	used := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: _metricsNamespace,
		Subsystem: "quota",
		Name:      "remaining",
		Help:      "Remaining daily quota for the paid provider.",
	}, []string{"provider"})
	tripped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: _metricsNamespace,
		Subsystem: "quota",
		Name:      "breaker_trips",
		Help:      "Count of circuit breaker trips by provider.",
	}, []string{"provider"})
	if reg != nil {
		reg.MustRegister(used, tripped)
	}
	return &quotaMetrics{used: used, tripped: tripped}
}

func (qm *quotaMetrics) remainingSet(provider string, n int) {
	qm.used.WithLabelValues(provider).Set(float64(n))
}

func (qm *quotaMetrics) tripInc(provider string) {
	qm.tripped.WithLabelValues(provider).Inc()
}

// queueMetrics tracks per-queue processed/retried/dlq counts (spec.md §4.7).
type queueMetrics struct {
	processed *prometheus.CounterVec
}

func newQueueMetrics(reg *prometheus.Registry) *queueMetrics {
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: _metricsNamespace,
		Subsystem: "queue",
		Name:      "messages_total",
		Help:      "Queue messages by queue name and outcome.",
	}, []string{"queue", "outcome"})
	if reg != nil {
		reg.MustRegister(processed)
	}
	return &queueMetrics{processed: processed}
}

func (qm *queueMetrics) inc(queue, outcome string) {
	qm.processed.WithLabelValues(queue, outcome).Inc()
}

// providerMetrics tracks per-provider call outcomes (spec.md §4.11).
type providerMetrics struct {
	calls *prometheus.CounterVec
}

func newProviderMetrics(reg *prometheus.Registry) *providerMetrics {
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: _metricsNamespace,
		Subsystem: "provider",
		Name:      "calls_total",
		Help:      "Provider calls by provider, capability, and status.",
	}, []string{"provider", "capability", "status"})
	if reg != nil {
		reg.MustRegister(calls)
	}
	return &providerMetrics{calls: calls}
}

func (pm *providerMetrics) inc(provider string, cap Capability, status string) {
	pm.calls.WithLabelValues(provider, string(cap), status).Inc()
}

// Instrument exposes instrument to main's middleware chain.
func Instrument(reg *prometheus.Registry, next http.Handler) http.Handler {
	return instrument(reg, next)
}

// instrument wraps an HTTP handler to automatically record timing and
// status codes, same shape as the teacher's internal/metrics.go.
func instrument(reg *prometheus.Registry, next http.Handler) http.Handler {
	requests := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: _metricsNamespace,
		Subsystem: "http",
		Name:      "requests",
		Help:      "HTTP request latencies by method & path",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 1.5, 2.0, 2.5, 5, 7.5, 10, 30, 60, 120},
	}, []string{"method", "path", "status"})
	inflight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: _metricsNamespace,
		Subsystem: "http",
		Name:      "inflight",
		Help:      "Current number of inbound in-flight HTTP requests.",
	})
	reg.MustRegister(requests, inflight)

	normalized := map[string]string{}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		inflight.Inc()
		defer inflight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path, ok := normalized[r.Pattern]
		if !ok {
			path = normalizePattern(r.Pattern)
			normalized[r.Pattern] = path
		}
		if path == "" {
			return
		}
		requests.WithLabelValues(r.Method, path, fmt.Sprint(ww.Status())).Observe(time.Since(start).Seconds())
	})
}

// normalizePattern derives the constant label from the pattern:
//
//	"/author/{authorKey}" → "/author/"
func normalizePattern(pattern string) string {
	return _patternRE.ReplaceAllString(pattern, "")
}
