package cache

import (
	"time"

	"github.com/sirupsen/logrus"
)

// janitor owns the cache's background goroutines: the periodic expiry
// sweep and the optional hit-rate report. Both stop when the cache closes.
type janitor struct {
	closing chan struct{}
}

func (j *janitor) stop() { close(j.closing) }

func startJanitor[V any](c *Cache[V]) *janitor {
	j := &janitor{closing: make(chan struct{})}

	// Sweep reclaims expired entries on a fixed tick so memory used by
	// dead, never-re-requested keys is eventually freed without traffic.
	// The scan is linear and runs under the cache lock; SweepInterval
	// bounds how often concurrent readers pay for it.
	if c.opt.SweepInterval > 0 {
		go func() {
			ticker := time.NewTicker(c.opt.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-j.closing:
					return
				case <-ticker.C:
					c.CleanupExpired()
				}
			}
		}()
	}

	// Periodic usage / hit-rate report through the configured logger.
	if c.opt.StatsInterval > 0 && c.opt.Logger != nil {
		go func() {
			ticker := time.NewTicker(c.opt.StatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-j.closing:
					return
				case <-ticker.C:
					st := c.Stats()
					c.opt.Logger.WithFields(logrus.Fields{
						"items":     st.ItemCount,
						"size":      st.Size,
						"usage_pct": st.UsagePercent,
						"hits":      st.Hits,
						"misses":    st.Misses,
						"hit_rate":  st.HitRate,
						"evictions": st.Evictions,
					}).Info("cache stats")
				}
			}
		}()
	}

	return j
}
