// Package prom exports cache and collapser metrics to Prometheus.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/DiDuV5/COSV5-sub018/batch"
	"github.com/DiDuV5/COSV5-sub018/cache"
)

// Adapter implements cache.Metrics and batch.Metrics over Prometheus
// counters/gauges. Safe for concurrent use; all Prometheus metric types
// are goroutine-safe.
type Adapter struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	evicts     *prometheus.CounterVec
	sizeEnt    prometheus.Gauge
	sizeBytes  prometheus.Gauge
	dispatches prometheus.Counter
	batchKeys  prometheus.Histogram
	fetchErrs  prometheus.Counter
}

// New constructs a Prometheus metrics adapter.
//   - reg:         registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:     Prometheus namespace and subsystem
//   - constLabels: static labels applied to all metrics (may be nil);
//     use them to distinguish entity kinds, e.g. {"kind": "user"}
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident entries",
			ConstLabels: constLabels,
		}),
		sizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_units",
			Help:        "Total resident size in caller-defined units",
			ConstLabels: constLabels,
		}),
		dispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "batch_dispatches_total",
			Help:        "Dispatched fetch batches",
			ConstLabels: constLabels,
		}),
		batchKeys: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "batch_keys",
			Help:        "Distinct keys per dispatched batch",
			Buckets:     prometheus.ExponentialBuckets(1, 2, 10), // 1..512
			ConstLabels: constLabels,
		}),
		fetchErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "fetch_errors_total",
			Help:        "Failed batch fetches",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.sizeEnt, a.sizeBytes, a.dispatches, a.batchKeys, a.fetchErrs)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(reason(r)).Inc()
}

// Size updates gauges for the number of entries and total size.
func (a *Adapter) Size(entries int, bytes int64) {
	a.sizeEnt.Set(float64(entries))
	a.sizeBytes.Set(float64(bytes))
}

// Dispatch records one executed batch and its key count.
func (a *Adapter) Dispatch(keys int) {
	a.dispatches.Inc()
	a.batchKeys.Observe(float64(keys))
}

// FetchError increments the failed-fetch counter.
func (a *Adapter) FetchError() { a.fetchErrs.Inc() }

// reason maps EvictReason to a stable label value.
func reason(r cache.EvictReason) string {
	switch r {
	case cache.EvictTTL:
		return "ttl"
	case cache.EvictConfig:
		return "config"
	default:
		return "capacity"
	}
}

// Compile-time checks: Adapter plugs into both hook interfaces.
var (
	_ cache.Metrics = (*Adapter)(nil)
	_ batch.Metrics = (*Adapter)(nil)
)
