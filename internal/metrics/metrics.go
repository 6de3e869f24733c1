package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records cache and restoration activity.
type Metrics interface {
	IncCacheHit(volume string)
	IncCacheMiss()
	IncRestoration(status string)
	ObserveRestoreDuration(seconds float64)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncCacheHit(string)             {}
func (Noop) IncCacheMiss()                  {}
func (Noop) IncRestoration(string)          {}
func (Noop) ObserveRestoreDuration(float64) {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	registry        *prometheus.Registry
	cacheHits       *prometheus.CounterVec
	cacheMisses     prometheus.Counter
	restorations    *prometheus.CounterVec
	restoreDuration prometheus.Histogram
}

// NewProm registers the collectors on a private registry under namespace.
func NewProm(namespace string) *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Objects served from a cache volume",
		}, []string{"volume"}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Objects not found in any cache volume",
		}),
		restorations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restorations_total",
			Help:      "Restorations from long-term storage by outcome",
		}, []string{"status"}),
		restoreDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "restoration_duration_seconds",
			Help:      "Time spent restoring an object into the cache",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
	p.registry.MustRegister(p.cacheHits, p.cacheMisses, p.restorations, p.restoreDuration)
	return p
}

func (p *Prom) IncCacheHit(volume string) {
	p.cacheHits.WithLabelValues(volume).Inc()
}

func (p *Prom) IncCacheMiss() {
	p.cacheMisses.Inc()
}

func (p *Prom) IncRestoration(status string) {
	p.restorations.WithLabelValues(status).Inc()
}

func (p *Prom) ObserveRestoreDuration(seconds float64) {
	p.restoreDuration.Observe(seconds)
}

// Gatherer exposes the private registry.
func (p *Prom) Gatherer() prometheus.Gatherer {
	return p.registry
}

// Handler serves the collected metrics in the Prometheus text format.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
