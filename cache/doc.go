// Package cache provides a bounded, generic in-memory cache with strict
// size accounting, TTL expiry, pluggable eviction policies (LRU, LFU,
// FIFO), lightweight metrics hooks, and runtime reconfiguration.
//
// Design
//
//   - Concurrency: one mutex per cache instance guards the item map and
//     the size counter. Separate instances (one per entity kind) share
//     nothing. The lock is never held across external calls.
//
//   - Accounting: every entry carries a caller-defined size; the tracked
//     total always equals the sum of resident sizes and never exceeds
//     MaxSize after a mutating operation returns. Drift is treated as a
//     programming error and panics during the janitor sweep.
//
//   - Eviction: when an insert would overflow, the policy receives a
//     snapshot of every resident item and the space that must be freed,
//     and returns victims until the target is met. Expired entries are
//     purged before live victims are chosen.
//
//   - TTL: entries carry absolute UnixNano deadlines derived from MaxAge
//     (or a per-entry TTL via SetWithTTL). Expiry is lazy on access, with
//     a periodic janitor sweep reclaiming entries nobody asks for again.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size signals;
//     NoopMetrics is the default. stats.Collector and the Prometheus
//     adapter in metrics/prom are drop-ins.
//
// Basic usage
//
//	c, err := cache.New[[]byte](cache.Options[[]byte]{
//	    Config: cache.Config{
//	        Enabled:  true,
//	        MaxSize:  64 << 20, // caller-defined units, here bytes
//	        MaxAge:   5 * time.Minute,
//	        Strategy: policy.LRU,
//	    },
//	    SweepInterval: time.Minute,
//	})
//	if err != nil {
//	    // invalid configuration
//	}
//	defer c.Close()
//
//	c.Set("a", payload, int64(len(payload)))
//	if v, ok := c.Get("a"); ok {
//	    _ = v
//	}
package cache
