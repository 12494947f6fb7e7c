package cache

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DiDuV5/COSV5-sub018/policy"
	"github.com/DiDuV5/COSV5-sub018/policy/fifo"
	"github.com/DiDuV5/COSV5-sub018/policy/lfu"
	"github.com/DiDuV5/COSV5-sub018/policy/lru"
)

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictCapacity — removed by the eviction policy to make room.
	EvictCapacity EvictReason = iota
	// EvictTTL — expired by TTL (lazily on access, or by the janitor sweep).
	EvictTTL
	// EvictConfig — removed because a config update shrank or disabled the cache.
	EvictConfig
)

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int, bytes int64)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// ConfigError reports an invalid construction or reconfiguration parameter.
// It is returned at construction/UpdateConfig time, never at call time.
type ConfigError struct {
	Option string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cache: invalid %s: %s", e.Option, e.Reason)
}

// Config holds the runtime-adjustable part of the cache configuration.
// It is accepted both at construction (embedded in Options) and later
// through UpdateConfig.
type Config struct {
	// Enabled is the master switch. A disabled cache always misses on
	// reads and rejects writes without mutating any state.
	Enabled bool

	// MaxSize is the capacity ceiling in caller-defined size units.
	// Must be > 0.
	MaxSize int64

	// MaxAge is the TTL applied to entries written through Set.
	// Must be > 0; "never expires" is deliberately not supported.
	MaxAge time.Duration

	// Strategy selects the eviction policy. Empty defaults to LRU.
	Strategy policy.Strategy
}

func (c Config) validate() error {
	if c.MaxSize <= 0 {
		return &ConfigError{Option: "MaxSize", Reason: "must be > 0"}
	}
	if c.MaxAge <= 0 {
		return &ConfigError{Option: "MaxAge", Reason: "must be > 0"}
	}
	if c.Strategy != "" && !c.Strategy.Valid() {
		return &ConfigError{Option: "Strategy", Reason: fmt.Sprintf("unknown strategy %q", c.Strategy)}
	}
	return nil
}

// policyFor maps a validated strategy to its implementation.
func policyFor(s policy.Strategy) policy.Policy {
	switch s {
	case policy.LFU:
		return lfu.New()
	case policy.FIFO:
		return fifo.New()
	default:
		return lru.New()
	}
}

// Options configures a Cache. The embedded Config must validate;
// everything else is optional wiring:
//   - nil Metrics -> NoopMetrics
//   - nil Clock   -> wall clock
//   - nil Logger  -> silent
type Options[V any] struct {
	Config

	// SweepInterval is the janitor period for reclaiming expired entries
	// that are never re-requested. 0 disables the background sweep
	// (expiry then happens only lazily on access).
	SweepInterval time.Duration

	// StatsInterval enables a periodic hit-rate report through Logger.
	// 0 disables it.
	StatsInterval time.Duration

	// OnEvict is called for every eviction, under the cache lock;
	// keep callbacks lightweight.
	OnEvict func(key string, v V, reason EvictReason)

	Metrics Metrics
	Clock   Clock
	Logger  *logrus.Logger
}
