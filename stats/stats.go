// Package stats provides an in-process, allocation-free metrics collector
// for the cache and the batch collapser. It is purely observational: plain
// atomic increments on the hot path, never blocking it.
package stats

import (
	"sync/atomic"

	"github.com/DiDuV5/COSV5-sub018/batch"
	"github.com/DiDuV5/COSV5-sub018/cache"
	"github.com/DiDuV5/COSV5-sub018/internal/util"
)

// Collector implements both cache.Metrics and batch.Metrics.
// Safe for concurrent use; counters are monotonic since construction.
type Collector struct {
	_              util.CacheLinePad
	hits           util.PaddedAtomicUint64
	misses         util.PaddedAtomicUint64
	evictCapacity  util.PaddedAtomicUint64
	evictTTL       util.PaddedAtomicUint64
	evictConfig    util.PaddedAtomicUint64
	dispatches     util.PaddedAtomicUint64
	dispatchedKeys util.PaddedAtomicUint64
	fetchErrors    util.PaddedAtomicUint64

	// last-reported gauges, not counters
	entries atomic.Int64
	bytes   atomic.Int64
}

// NewCollector returns an empty collector.
func NewCollector() *Collector { return &Collector{} }

func (c *Collector) Hit()  { c.hits.Add(1) }
func (c *Collector) Miss() { c.misses.Add(1) }

func (c *Collector) Evict(reason cache.EvictReason) {
	switch reason {
	case cache.EvictTTL:
		c.evictTTL.Add(1)
	case cache.EvictConfig:
		c.evictConfig.Add(1)
	default:
		c.evictCapacity.Add(1)
	}
}

func (c *Collector) Size(entries int, bytes int64) {
	c.entries.Store(int64(entries))
	c.bytes.Store(bytes)
}

func (c *Collector) Dispatch(keys int) {
	c.dispatches.Add(1)
	c.dispatchedKeys.Add(uint64(keys))
}

func (c *Collector) FetchError() { c.fetchErrors.Add(1) }

// Snapshot is a read-only view of the collected counters.
type Snapshot struct {
	Hits   uint64
	Misses uint64
	// HitRate is Hits/(Hits+Misses); 0 without traffic.
	HitRate float64

	EvictedCapacity uint64
	EvictedTTL      uint64
	EvictedConfig   uint64

	Entries int
	Bytes   int64

	Dispatches     uint64
	DispatchedKeys uint64
	// AvgBatchSize is DispatchedKeys/Dispatches; 0 without dispatches.
	AvgBatchSize float64
	FetchErrors  uint64
}

// Snapshot captures the current counter values.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		EvictedCapacity: c.evictCapacity.Load(),
		EvictedTTL:      c.evictTTL.Load(),
		EvictedConfig:   c.evictConfig.Load(),
		Entries:         int(c.entries.Load()),
		Bytes:           c.bytes.Load(),
		Dispatches:      c.dispatches.Load(),
		DispatchedKeys:  c.dispatchedKeys.Load(),
		FetchErrors:     c.fetchErrors.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	if s.Dispatches > 0 {
		s.AvgBatchSize = float64(s.DispatchedKeys) / float64(s.Dispatches)
	}
	return s
}

// Compile-time checks: Collector plugs into both hook interfaces.
var (
	_ cache.Metrics = (*Collector)(nil)
	_ batch.Metrics = (*Collector)(nil)
)
