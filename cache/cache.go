package cache

import (
	"fmt"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DiDuV5/COSV5-sub018/internal/util"
	"github.com/DiDuV5/COSV5-sub018/policy"
)

// Cache is a bounded in-memory KV store with TTL expiry, size accounting,
// and a pluggable eviction policy. Keys are strings; values are generic.
// All methods are safe for concurrent use by multiple goroutines.
//
// One mutex guards the item map and the size counter. The policy sees a
// snapshot of every resident item, so victim selection is global; the
// eviction-order guarantees hold at the price of an O(n) scan when the
// cache is over capacity.
type Cache[V any] struct {
	// ---- guarded by mu ----
	mu      sync.Mutex
	m       map[string]*entry[V]
	cur     int64 // sum of resident entry sizes; must never drift
	enabled bool
	maxSize int64
	maxAge  time.Duration
	pol     policy.Policy

	opt    Options[V]
	closed atomic.Bool

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_       util.CacheLinePad
	hits    util.PaddedAtomicUint64
	misses  util.PaddedAtomicUint64
	evicts  util.PaddedAtomicUint64
	expired util.PaddedAtomicUint64

	janitor *janitor
}

// New constructs a Cache with the provided Options.
// The embedded Config is validated up front; an invalid MaxSize, MaxAge,
// or Strategy yields a *ConfigError and no cache is created.
func New[V any](opt Options[V]) (*Cache[V], error) {
	if err := opt.Config.validate(); err != nil {
		return nil, err
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}

	c := &Cache[V]{
		m:       make(map[string]*entry[V]),
		enabled: opt.Enabled,
		maxSize: opt.MaxSize,
		maxAge:  opt.MaxAge,
		pol:     policyFor(opt.Strategy),
		opt:     opt,
	}
	if opt.SweepInterval > 0 || (opt.StatsInterval > 0 && opt.Logger != nil) {
		c.janitor = startJanitor(c)
	}
	return c, nil
}

// Get returns the value for key and a presence flag.
// On hit the entry's access metadata is updated. An expired entry is
// removed on the access that discovers it and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if c.closed.Load() {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return zero, false
	}

	n, ok := c.m[key]
	if !ok {
		c.misses.Add(1)
		c.opt.Metrics.Miss()
		return zero, false
	}
	if c.expiredLocked(n) {
		c.evictLocked(key, n, EvictTTL)
		c.misses.Add(1)
		c.opt.Metrics.Miss()
		return zero, false
	}

	n.accessCount++
	n.lastAccessed = c.now()
	c.hits.Add(1)
	c.opt.Metrics.Hit()
	return n.val, true
}

// GetEntry is Get plus metadata: it returns a copy of the full entry,
// including the ETag attached via SetTagged.
func (c *Cache[V]) GetEntry(key string) (Entry[V], bool) {
	if c.closed.Load() {
		return Entry[V]{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return Entry[V]{}, false
	}

	n, ok := c.m[key]
	if !ok {
		c.misses.Add(1)
		c.opt.Metrics.Miss()
		return Entry[V]{}, false
	}
	if c.expiredLocked(n) {
		c.evictLocked(key, n, EvictTTL)
		c.misses.Add(1)
		c.opt.Metrics.Miss()
		return Entry[V]{}, false
	}

	n.accessCount++
	n.lastAccessed = c.now()
	c.hits.Add(1)
	c.opt.Metrics.Hit()
	return Entry[V]{
		Key:          key,
		Value:        n.val,
		Size:         n.size,
		ETag:         n.etag,
		AccessCount:  n.accessCount,
		CreatedAt:    time.Unix(0, n.createdAt),
		LastAccessed: time.Unix(0, n.lastAccessed),
		ExpiresAt:    time.Unix(0, n.expireAt),
	}, true
}

// Has reports whether key is resident and unexpired. Unlike Get it does
// not touch access metadata (and is not counted as a hit or miss), but an
// expired entry discovered here is removed just the same.
func (c *Cache[V]) Has(key string) bool {
	if c.closed.Load() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return false
	}

	n, ok := c.m[key]
	if !ok {
		return false
	}
	if c.expiredLocked(n) {
		c.evictLocked(key, n, EvictTTL)
		return false
	}
	return true
}

// Set inserts or replaces key with value using the cache's MaxAge as TTL.
// It returns false when the write is rejected: cache closed or disabled,
// non-positive size, or size > MaxSize (an oversized item can never fit).
func (c *Cache[V]) Set(key string, v V, size int64) bool {
	return c.set(key, v, size, 0, "")
}

// SetWithTTL is Set with a per-entry TTL overriding MaxAge.
// A non-positive ttl falls back to MaxAge.
func (c *Cache[V]) SetWithTTL(key string, v V, size int64, ttl time.Duration) bool {
	return c.set(key, v, size, ttl, "")
}

// SetTagged is Set with an opaque ETag attached to the entry.
func (c *Cache[V]) SetTagged(key string, v V, size int64, etag string) bool {
	return c.set(key, v, size, 0, etag)
}

func (c *Cache[V]) set(key string, v V, size int64, ttl time.Duration, etag string) bool {
	if c.closed.Load() || size <= 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return false
	}
	if size > c.maxSize {
		return false
	}
	if ttl <= 0 {
		ttl = c.maxAge
	}

	// Replace atomically: refund the old entry first so re-insertion
	// never double-counts.
	if old, ok := c.m[key]; ok {
		c.removeLocked(key, old)
	}

	if c.cur+size > c.maxSize {
		// Expired entries go first: they are dead weight and should never
		// force a live victim out. The policy picks from what remains.
		c.purgeExpiredLocked()
	}
	if need := c.cur + size - c.maxSize; need > 0 {
		for _, victim := range c.pol.SelectVictims(c.snapshotLocked(), need) {
			if n, ok := c.m[victim]; ok {
				c.evictLocked(victim, n, EvictCapacity)
			}
		}
		if c.cur+size > c.maxSize {
			// Policy returned too few victims; refusing the insert keeps
			// the size invariant intact.
			return false
		}
	}

	now := c.now()
	c.m[key] = &entry[V]{
		val:          v,
		size:         size,
		etag:         etag,
		createdAt:    now,
		lastAccessed: now,
		expireAt:     now + int64(ttl),
	}
	c.cur += size
	c.opt.Metrics.Size(len(c.m), c.cur)
	return true
}

// Delete removes key if present. Explicit deletes are not counted as
// evictions.
func (c *Cache[V]) Delete(key string) bool {
	if c.closed.Load() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.m[key]
	if !ok {
		return false
	}
	c.removeLocked(key, n)
	c.opt.Metrics.Size(len(c.m), c.cur)
	return true
}

// DeletePattern removes every key matching the path.Match glob pattern
// and returns how many were removed. The glob syntax mirrors the remote
// tier's delete-by-pattern.
func (c *Cache[V]) DeletePattern(pattern string) (int, error) {
	if c.closed.Load() {
		return 0, nil
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, n := range c.m {
		if ok, _ := path.Match(pattern, key); ok {
			c.removeLocked(key, n)
			removed++
		}
	}
	if removed > 0 {
		c.opt.Metrics.Size(len(c.m), c.cur)
	}
	return removed, nil
}

// CleanupExpired sweeps all items, removes those past their deadline, and
// returns the count removed. It runs periodically on the janitor tick so
// memory held by dead, never-re-requested keys is reclaimed even without
// traffic. The sweep also verifies size accounting; drift is a programming
// error and panics rather than being silently corrected.
func (c *Cache[V]) CleanupExpired() int {
	if c.closed.Load() {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := c.purgeExpiredLocked()
	c.verifyAccountingLocked()
	if removed > 0 {
		c.opt.Metrics.Size(len(c.m), c.cur)
	}
	return removed
}

// Len returns the number of resident entries (including any not yet swept
// expired ones).
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// UpdateConfig revalidates and applies cfg at runtime.
// Disabling clears all state. Shrinking MaxSize below current usage
// immediately evicts down to the new ceiling using the (possibly new)
// policy.
func (c *Cache[V]) UpdateConfig(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.maxSize = cfg.MaxSize
	c.maxAge = cfg.MaxAge
	c.pol = policyFor(cfg.Strategy)

	if !cfg.Enabled {
		c.enabled = false
		for key, n := range c.m {
			c.evictLocked(key, n, EvictConfig)
		}
		c.opt.Metrics.Size(len(c.m), c.cur)
		return nil
	}
	c.enabled = true

	if need := c.cur - c.maxSize; need > 0 {
		c.purgeExpiredLocked()
		if need = c.cur - c.maxSize; need > 0 {
			for _, key := range c.pol.SelectVictims(c.snapshotLocked(), need) {
				if n, ok := c.m[key]; ok {
					c.evictLocked(key, n, EvictConfig)
				}
			}
		}
	}
	c.opt.Metrics.Size(len(c.m), c.cur)
	return nil
}

// Close stops the janitor and marks the cache closed.
// Future operations are ignored.
func (c *Cache[V]) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.janitor != nil {
		c.janitor.stop()
	}
	return nil
}

// -------------------- internals (mu held) --------------------

func (c *Cache[V]) now() int64 {
	if c.opt.Clock != nil {
		return c.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

func (c *Cache[V]) expiredLocked(n *entry[V]) bool {
	return c.now() > n.expireAt
}

// removeLocked detaches n from the map and refunds its size.
// Not an eviction: no counters, no callback.
func (c *Cache[V]) removeLocked(key string, n *entry[V]) {
	delete(c.m, key)
	c.cur -= n.size
	if c.cur < 0 {
		panic(fmt.Sprintf("cache: size accounting went negative (%d) removing %q", c.cur, key))
	}
}

// evictLocked removes n, updates eviction counters, and fires OnEvict.
func (c *Cache[V]) evictLocked(key string, n *entry[V], reason EvictReason) {
	c.removeLocked(key, n)
	c.evicts.Add(1)
	if reason == EvictTTL {
		c.expired.Add(1)
	}
	c.opt.Metrics.Evict(reason)
	if cb := c.opt.OnEvict; cb != nil {
		// Called under the lock; keep callbacks lightweight.
		cb(key, n.val, reason)
	}
}

func (c *Cache[V]) purgeExpiredLocked() int {
	removed := 0
	for key, n := range c.m {
		if c.expiredLocked(n) {
			c.evictLocked(key, n, EvictTTL)
			removed++
		}
	}
	return removed
}

// snapshotLocked copies the resident items into the policy's view.
func (c *Cache[V]) snapshotLocked() []policy.Item {
	items := make([]policy.Item, 0, len(c.m))
	for key, n := range c.m {
		items = append(items, policy.Item{
			Key:          key,
			Size:         n.size,
			AccessCount:  n.accessCount,
			CreatedAt:    n.createdAt,
			LastAccessed: n.lastAccessed,
		})
	}
	return items
}

// verifyAccountingLocked recomputes the size sum and panics on drift.
// A silent fix here could mask a real bug, so it is deliberately fatal.
func (c *Cache[V]) verifyAccountingLocked() {
	var sum int64
	for _, n := range c.m {
		sum += n.size
	}
	if sum != c.cur {
		panic(fmt.Sprintf("cache: size accounting drift: tracked %d, actual %d", c.cur, sum))
	}
}
