// Package loader is the application-facing facade: one batch collapser and
// one bounded cache per entity kind behind a typed Load/LoadMany API.
package loader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/DiDuV5/COSV5-sub018/batch"
	"github.com/DiDuV5/COSV5-sub018/cache"
	"github.com/DiDuV5/COSV5-sub018/policy"
)

// ErrNotFound reports that the backing store has no value for the id.
// It is the same sentinel the batch layer resolves, re-exported so callers
// only need this package.
var ErrNotFound = batch.ErrNotFound

// Metrics combines the cache and collapser hook interfaces; both
// stats.Collector and the Prometheus adapter satisfy it.
type Metrics interface {
	cache.Metrics
	batch.Metrics
}

// Config assembles one entity kind's loader. Fetch, MaxSize and MaxAge are
// required; everything else has defaults.
type Config[V any] struct {
	// Fetch is the backing-store bulk lookup for this entity kind.
	Fetch batch.FetchFunc[V]

	// Cache bounds.
	MaxSize  int64
	MaxAge   time.Duration
	Strategy policy.Strategy
	// Disabled turns the cache into an always-miss, no-op-write shell;
	// loads then go straight to batching.
	Disabled bool

	// Batching.
	Window       time.Duration
	MaxBatchSize int
	NegativeTTL  time.Duration

	// SizeOf reports the accounting cost of a value (nil = 1 per entry).
	SizeOf func(v V) int64

	// Background maintenance (see cache.Options).
	SweepInterval time.Duration
	StatsInterval time.Duration

	// Optional remote tier; Encode/Decode are required with it.
	Remote batch.Remote
	Encode func(v V) ([]byte, error)
	Decode func(b []byte) (V, error)

	Metrics Metrics
	Clock   cache.Clock
	Logger  *logrus.Logger
}

// Loader composes the bounded cache and the collapser for one entity kind.
// All methods are safe for concurrent use.
type Loader[V any] struct {
	c   *cache.Cache[batch.Result[V]]
	col *batch.Collapser[V]
}

// New validates cfg and wires the cache/collapser pair.
func New[V any](cfg Config[V]) (*Loader[V], error) {
	copt := cache.Options[batch.Result[V]]{
		Config: cache.Config{
			Enabled:  !cfg.Disabled,
			MaxSize:  cfg.MaxSize,
			MaxAge:   cfg.MaxAge,
			Strategy: cfg.Strategy,
		},
		SweepInterval: cfg.SweepInterval,
		StatsInterval: cfg.StatsInterval,
		Clock:         cfg.Clock,
		Logger:        cfg.Logger,
	}
	if cfg.Metrics != nil {
		copt.Metrics = cfg.Metrics
	}
	c, err := cache.New(copt)
	if err != nil {
		return nil, err
	}

	bopt := batch.Options[V]{
		Window:       cfg.Window,
		MaxBatchSize: cfg.MaxBatchSize,
		NegativeTTL:  cfg.NegativeTTL,
		SizeOf:       cfg.SizeOf,
		Remote:       cfg.Remote,
		RemoteTTL:    cfg.MaxAge,
		Encode:       cfg.Encode,
		Decode:       cfg.Decode,
		Logger:       cfg.Logger,
	}
	if cfg.Metrics != nil {
		bopt.Metrics = cfg.Metrics
	}
	col, err := batch.New(c, cfg.Fetch, bopt)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return &Loader[V]{c: c, col: col}, nil
}

// Load resolves one id: cached value, batched fetch, or ErrNotFound.
func (l *Loader[V]) Load(ctx context.Context, id string) (V, error) {
	return l.col.Load(ctx, id)
}

// LoadMany fans out to Load concurrently and awaits all. Ids are deduped;
// ids the backing store does not know are simply absent from the result
// (absence = not found). The first fetch error fails the whole call.
func (l *Loader[V]) LoadMany(ctx context.Context, ids []string) (map[string]V, error) {
	ids = dedupe(ids)
	out := make(map[string]V, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			v, err := l.col.Load(ctx, id)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return nil
				}
				return err
			}
			mu.Lock()
			out[id] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Invalidate drops id from the local cache (and remote tier, if any).
func (l *Loader[V]) Invalidate(ctx context.Context, id string) bool {
	return l.col.Invalidate(ctx, id)
}

// InvalidatePattern drops every id matching the glob pattern.
func (l *Loader[V]) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	return l.col.InvalidatePattern(ctx, pattern)
}

// Stats snapshots the underlying cache.
func (l *Loader[V]) Stats() cache.Stats { return l.c.Stats() }

// UpdateConfig applies new cache bounds at runtime (see cache.UpdateConfig).
func (l *Loader[V]) UpdateConfig(cfg cache.Config) error { return l.c.UpdateConfig(cfg) }

// Close stops batching and background maintenance.
func (l *Loader[V]) Close() error {
	err := l.col.Close()
	if cerr := l.c.Close(); err == nil {
		err = cerr
	}
	return err
}

// dedupe drops empty and repeated ids, keeping first-seen order.
func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
