// Package batch collapses concurrent load requests into windowed bulk
// fetches and populates a bounded cache with the results.
package batch

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DiDuV5/COSV5-sub018/cache"
)

// Collapser deduplicates concurrent loads for one entity kind: requests
// arriving within one debounce window are accumulated into a single bulk
// fetch, and every waiter of the window is fanned the shared outcome.
//
// Per key this is a small state machine: unseen -> pending (joined the
// open window) -> in flight (window dispatched) -> resolved or not-found
// (cached) / failed (error to all waiters, nothing cached). A later cache
// expiry restarts the cycle.
type Collapser[V any] struct {
	c     *cache.Cache[Result[V]]
	fetch FetchFunc[V]
	opt   Options[V]
	log   *logrus.Logger

	mu  sync.Mutex
	cur *pendingBatch[V] // open window, nil when none

	closed atomic.Bool
}

// pendingBatch accumulates keys during one debounce window.
// keys/keySet are frozen once dispatched flips; res and err are published
// before done is closed, so any read after <-done observes final values.
type pendingBatch[V any] struct {
	keys   []string
	keySet map[string]struct{}
	timer  *time.Timer

	dispatched bool

	done chan struct{}
	res  map[string]V
	err  error
}

// New constructs a Collapser over c. fetch is the external bulk lookup
// and must be non-nil; configuring a Remote tier without Encode/Decode is
// a construction error.
func New[V any](c *cache.Cache[Result[V]], fetch FetchFunc[V], opt Options[V]) (*Collapser[V], error) {
	if fetch == nil {
		return nil, &cache.ConfigError{Option: "Fetch", Reason: "fetch function is required"}
	}
	if opt.Remote != nil && (opt.Encode == nil || opt.Decode == nil) {
		return nil, &cache.ConfigError{Option: "Remote", Reason: "Encode and Decode are required with a remote tier"}
	}
	opt.applyDefaults()

	log := opt.Logger
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Collapser[V]{c: c, fetch: fetch, opt: opt, log: log}, nil
}

// Load returns the value for key, batching the backing-store lookup with
// other concurrent misses. It resolves with the value, fails with
// ErrNotFound (also on a cached negative sentinel), or propagates the
// fetch error shared by the whole batch.
//
// ctx only bounds this caller's wait: cancelling it abandons the wait but
// never cancels the in-flight batch, which completes and populates the
// cache for everyone else.
func (c *Collapser[V]) Load(ctx context.Context, key string) (V, error) {
	var zero V
	if c.closed.Load() {
		return zero, ErrClosed
	}

	if r, ok := c.c.Get(key); ok {
		if r.NotFound {
			return zero, ErrNotFound
		}
		return r.Value, nil
	}

	p := c.join(key)
	select {
	case <-p.done:
		if p.err != nil {
			return zero, p.err
		}
		if v, ok := p.res[key]; ok {
			return v, nil
		}
		return zero, ErrNotFound
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// join registers key with the open window, opening one if needed.
// The first key of a window arms the timer; reaching MaxBatchSize
// force-dispatches instead of waiting for it.
func (c *Collapser[V]) join(key string) *pendingBatch[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.cur
	if p == nil || p.dispatched {
		p = &pendingBatch[V]{
			keySet: make(map[string]struct{}),
			done:   make(chan struct{}),
		}
		p.timer = time.AfterFunc(c.opt.Window, func() { c.dispatch(p) })
		c.cur = p
	}

	if _, ok := p.keySet[key]; !ok {
		p.keySet[key] = struct{}{}
		p.keys = append(p.keys, key)
		if len(p.keys) >= c.opt.MaxBatchSize {
			// Cap reached: freeze now, later keys start a fresh window.
			p.dispatched = true
			p.timer.Stop()
			c.cur = nil
			go c.run(p)
		}
	}
	return p
}

// dispatch is the window-timer callback.
func (c *Collapser[V]) dispatch(p *pendingBatch[V]) {
	c.mu.Lock()
	if p.dispatched {
		c.mu.Unlock()
		return
	}
	p.dispatched = true
	if c.cur == p {
		c.cur = nil
	}
	c.mu.Unlock()

	c.run(p)
}

// run executes the batch outside all locks: consult the remote tier once,
// bulk-fetch the rest, populate the cache, and wake every waiter.
// The batch runs under its own context; caller timeouts do not reach it.
func (c *Collapser[V]) run(p *pendingBatch[V]) {
	ctx := context.Background()
	results := make(map[string]V, len(p.keys))

	remaining := p.keys
	if c.opt.Remote != nil {
		remaining = c.consultRemote(ctx, p.keys, results)
	}

	var fetched map[string]V
	if len(remaining) > 0 {
		var err error
		fetched, err = c.fetch(ctx, remaining)
		if err != nil {
			// Same error to every waiter; nothing is cached, retry is the
			// caller's concern.
			c.opt.Metrics.FetchError()
			p.err = err
			close(p.done)
			return
		}
	}

	for _, k := range remaining {
		if v, ok := fetched[k]; ok {
			results[k] = v
		}
	}

	for _, k := range p.keys {
		v, ok := results[k]
		if !ok {
			c.c.SetWithTTL(k, Result[V]{NotFound: true}, negativeSize, c.opt.NegativeTTL)
			continue
		}
		c.c.Set(k, Result[V]{Value: v}, c.sizeOf(v))
	}
	if c.opt.Remote != nil {
		c.writeBehind(ctx, remaining, fetched)
	}

	p.res = results
	close(p.done)
	c.opt.Metrics.Dispatch(len(p.keys))
}

// consultRemote resolves what it can from the remote tier and returns the
// keys that still need the fetch function. Remote failures only log.
func (c *Collapser[V]) consultRemote(ctx context.Context, keys []string, results map[string]V) []string {
	remaining := make([]string, 0, len(keys))
	for _, k := range keys {
		b, ok, err := c.opt.Remote.Get(ctx, k)
		if err != nil {
			c.log.WithFields(logrus.Fields{"key": k, "err": err}).Warn("remote cache read failed")
			remaining = append(remaining, k)
			continue
		}
		if !ok {
			remaining = append(remaining, k)
			continue
		}
		v, err := c.opt.Decode(b)
		if err != nil {
			c.log.WithFields(logrus.Fields{"key": k, "err": err}).Warn("remote cache payload corrupt")
			remaining = append(remaining, k)
			continue
		}
		results[k] = v
		c.c.Set(k, Result[V]{Value: v}, c.sizeOf(v))
	}
	return remaining
}

// writeBehind copies freshly fetched values to the remote tier.
// Best effort: a failed write never fails the load.
func (c *Collapser[V]) writeBehind(ctx context.Context, keys []string, fetched map[string]V) {
	for _, k := range keys {
		v, ok := fetched[k]
		if !ok {
			continue
		}
		b, err := c.opt.Encode(v)
		if err != nil {
			c.log.WithFields(logrus.Fields{"key": k, "err": err}).Warn("remote cache encode failed")
			continue
		}
		if err := c.opt.Remote.Set(ctx, k, b, c.opt.RemoteTTL); err != nil {
			c.log.WithFields(logrus.Fields{"key": k, "err": err}).Warn("remote cache write failed")
		}
	}
}

// Invalidate drops key from the local cache and, best effort, from the
// remote tier. Returns whether a local entry existed.
func (c *Collapser[V]) Invalidate(ctx context.Context, key string) bool {
	ok := c.c.Delete(key)
	if c.opt.Remote != nil {
		if err := c.opt.Remote.Del(ctx, key); err != nil {
			c.log.WithFields(logrus.Fields{"key": key, "err": err}).Warn("remote cache delete failed")
		}
	}
	return ok
}

// InvalidatePattern drops every key matching the glob pattern from the
// local cache and the remote tier, returning the local removal count.
func (c *Collapser[V]) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	n, err := c.c.DeletePattern(pattern)
	if err != nil {
		return 0, err
	}
	if c.opt.Remote != nil {
		if _, err := c.opt.Remote.DelPattern(ctx, pattern); err != nil {
			c.log.WithFields(logrus.Fields{"pattern": pattern, "err": err}).Warn("remote cache pattern delete failed")
		}
	}
	return n, nil
}

// Close stops the open window (pending waiters are failed with ErrClosed)
// and rejects future loads. Already-dispatched batches run to completion.
func (c *Collapser[V]) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.mu.Lock()
	p := c.cur
	c.cur = nil
	if p != nil && !p.dispatched {
		p.dispatched = true
		p.timer.Stop()
	} else {
		p = nil
	}
	c.mu.Unlock()

	if p != nil {
		p.err = ErrClosed
		close(p.done)
	}
	return nil
}

func (c *Collapser[V]) sizeOf(v V) int64 {
	if c.opt.SizeOf == nil {
		return 1
	}
	if s := c.opt.SizeOf(v); s > 0 {
		return s
	}
	return 1
}
