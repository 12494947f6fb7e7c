package cache

// Stats is a point-in-time snapshot of cache usage and effectiveness.
type Stats struct {
	Size      int64
	MaxSize   int64
	ItemCount int

	Hits      uint64
	Misses    uint64
	Evictions uint64 // all reasons, TTL expiries included
	Expired   uint64 // TTL subset of Evictions

	// UsagePercent is Size/MaxSize in [0..100].
	UsagePercent float64
	// HitRate is Hits/(Hits+Misses) in [0..1]; 0 when there was no traffic.
	HitRate float64
}

// Stats returns a consistent snapshot. Counters are monotonic since
// construction; they are not reset by UpdateConfig or CleanupExpired.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	size := c.cur
	maxSize := c.maxSize
	count := len(c.m)
	c.mu.Unlock()

	s := Stats{
		Size:      size,
		MaxSize:   maxSize,
		ItemCount: count,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evicts.Load(),
		Expired:   c.expired.Load(),
	}
	if maxSize > 0 {
		s.UsagePercent = float64(size) / float64(maxSize) * 100
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
