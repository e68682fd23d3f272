package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CoreMetrics records checkout outcomes and cache traffic.
type CoreMetrics struct {
	checkoutDuration *prometheus.HistogramVec
	checkoutOutcomes *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
}

// NewCoreMetrics registers the core metrics on the provided registerer.
func NewCoreMetrics(reg prometheus.Registerer) *CoreMetrics {
	if reg == nil {
		return &CoreMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout transactions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	hits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Cache hits by tier and namespace.",
	}, []string{"tier", "namespace"})
	misses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Cache misses by namespace.",
	}, []string{"namespace"})
	reg.MustRegister(duration, outcomes, hits, misses)
	return &CoreMetrics{
		checkoutDuration: duration,
		checkoutOutcomes: outcomes,
		cacheHits:        hits,
		cacheMisses:      misses,
	}
}

// ObserveCheckout records one checkout attempt.
func (m *CoreMetrics) ObserveCheckout(outcome string, elapsed time.Duration) {
	if m == nil || m.checkoutOutcomes == nil {
		return
	}
	m.checkoutOutcomes.WithLabelValues(outcome).Inc()
	m.checkoutDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// CacheHit implements the cache recorder surface.
func (m *CoreMetrics) CacheHit(tier, namespace string) {
	if m == nil || m.cacheHits == nil {
		return
	}
	m.cacheHits.WithLabelValues(tier, namespace).Inc()
}

// CacheMiss implements the cache recorder surface.
func (m *CoreMetrics) CacheMiss(namespace string) {
	if m == nil || m.cacheMisses == nil {
		return
	}
	m.cacheMisses.WithLabelValues(namespace).Inc()
}
