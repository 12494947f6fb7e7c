package batch

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is resolved to waiters whose key was absent from the fetch
// result, and returned on hits against a cached negative sentinel.
var ErrNotFound = errors.New("batch: key not found")

// ErrClosed is returned by Load after the collapser has been closed.
var ErrClosed = errors.New("batch: collapser closed")

// Result wraps a lookup outcome as stored in the bounded cache.
// NotFound marks a negative sentinel: the backing store was asked and had
// nothing, and that fact is cached with the (short) NegativeTTL so
// persistently-missing keys do not hammer the backend.
type Result[V any] struct {
	Value    V
	NotFound bool
}

// FetchFunc is the external bulk lookup, supplied per entity kind.
// Keys missing from the returned map are treated as not found; a non-nil
// error rejects every waiter of the batch and caches nothing.
type FetchFunc[V any] func(ctx context.Context, keys []string) (map[string]V, error)

// Remote is an optional second cache tier (typically Redis) consulted once
// per dispatched batch before the fetch function runs. Its failures are
// logged and never fail a load; its consistency model is its own business.
type Remote interface {
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	DelPattern(ctx context.Context, pattern string) (int, error)
}

// Metrics exposes collapser-level observability hooks.
type Metrics interface {
	// Dispatch is called once per executed batch with the number of
	// distinct keys it carried.
	Dispatch(keys int)
	FetchError()
}

// NoopMetrics is the default Metrics implementation.
type NoopMetrics struct{}

func (NoopMetrics) Dispatch(int) {}
func (NoopMetrics) FetchError()  {}

var _ Metrics = NoopMetrics{}

const (
	// DefaultWindow is the debounce window before a batch auto-dispatches.
	DefaultWindow = 10 * time.Millisecond
	// DefaultMaxBatchSize force-dispatches a window once it accumulates
	// this many distinct keys.
	DefaultMaxBatchSize = 128
	// DefaultNegativeTTL is the lifetime of not-found sentinels.
	DefaultNegativeTTL = 30 * time.Second
	// negativeSize is the accounting cost of a not-found sentinel.
	negativeSize = 1
)

// Options configures a Collapser. Zero values get defaults; only the
// remote-tier wiring can be invalid (Remote without a codec).
type Options[V any] struct {
	// Window is the debounce duration before a batch auto-dispatches.
	Window time.Duration

	// MaxBatchSize caps how many distinct keys one window accumulates;
	// hitting the cap force-dispatches immediately.
	MaxBatchSize int

	// NegativeTTL is the (short) lifetime for not-found sentinels,
	// distinct from the cache's normal MaxAge.
	NegativeTTL time.Duration

	// SizeOf reports the accounting cost of a fetched value.
	// Nil means every entry costs 1 unit.
	SizeOf func(v V) int64

	// Remote tier wiring. When Remote is set, Encode and Decode must be
	// set too; values cross the tier as bytes. RemoteTTL bounds write-behind
	// entries; pass the cache's MaxAge to keep the tiers aligned.
	Remote    Remote
	RemoteTTL time.Duration
	Encode    func(v V) ([]byte, error)
	Decode    func(b []byte) (V, error)

	Metrics Metrics
	Logger  *logrus.Logger
}

func (o *Options[V]) applyDefaults() {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = DefaultMaxBatchSize
	}
	if o.NegativeTTL <= 0 {
		o.NegativeTTL = DefaultNegativeTTL
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
}
