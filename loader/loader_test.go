package loader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DiDuV5/COSV5-sub018/cache"
	"github.com/DiDuV5/COSV5-sub018/policy"
	"github.com/DiDuV5/COSV5-sub018/stats"
)

type user struct {
	ID   string
	Name string
}

// fakeStore stands in for the backing database.
type fakeStore struct {
	mu    sync.Mutex
	calls int
	keys  [][]string
	rows  map[string]user
}

func newFakeStore(ids ...string) *fakeStore {
	s := &fakeStore{rows: make(map[string]user)}
	for _, id := range ids {
		s.rows[id] = user{ID: id, Name: "name-" + id}
	}
	return s
}

func (s *fakeStore) fetch(_ context.Context, keys []string) (map[string]user, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	cp := make([]string, len(keys))
	copy(cp, keys)
	s.keys = append(s.keys, cp)

	out := make(map[string]user, len(keys))
	for _, k := range keys {
		if u, ok := s.rows[k]; ok {
			out[k] = u
		}
	}
	return out, nil
}

func (s *fakeStore) fetchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newUserLoader(t *testing.T, store *fakeStore, mutate func(*Config[user])) *Loader[user] {
	t.Helper()
	cfg := Config[user]{
		Fetch:        store.fetch,
		MaxSize:      1000,
		MaxAge:       time.Hour,
		Strategy:     policy.LRU,
		Window:       20 * time.Millisecond,
		MaxBatchSize: 64,
		NegativeTTL:  time.Minute,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLoader_LoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := newFakeStore("u1")
	l := newUserLoader(t, store, nil)

	u, err := l.Load(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if u.Name != "name-u1" {
		t.Fatalf("want name-u1, got %+v", u)
	}

	if _, err := l.Load(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

// LoadMany dedupes ids, rides one batch, and omits unknown ids from the
// result instead of failing.
func TestLoader_LoadMany(t *testing.T) {
	t.Parallel()

	store := newFakeStore("u1", "u2")
	l := newUserLoader(t, store, nil)

	got, err := l.LoadMany(context.Background(), []string{"u1", "u2", "u1", "", "ghost"})
	if err != nil {
		t.Fatalf("LoadMany: %v", err)
	}
	if len(got) != 2 || got["u1"].Name != "name-u1" || got["u2"].Name != "name-u2" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if _, ok := got["ghost"]; ok {
		t.Fatal("unknown id must be absent, not zero-valued")
	}
	if store.fetchCalls() != 1 {
		t.Fatalf("want 1 batched fetch, got %d", store.fetchCalls())
	}
}

func TestLoader_LoadManyEmpty(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	l := newUserLoader(t, store, nil)

	got, err := l.LoadMany(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("want empty result, got %v, %v", got, err)
	}
	if store.fetchCalls() != 0 {
		t.Fatal("no ids means no fetch")
	}
}

// A fetch error fails the whole LoadMany call.
func TestLoader_LoadManyPropagatesFetchError(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	fetch := func(context.Context, []string) (map[string]user, error) { return nil, boom }
	l := newUserLoader(t, newFakeStore(), func(c *Config[user]) { c.Fetch = fetch })

	if _, err := l.LoadMany(context.Background(), []string{"a", "b"}); !errors.Is(err, boom) {
		t.Fatalf("want fetch error, got %v", err)
	}
}

func TestLoader_InvalidateForcesRefetch(t *testing.T) {
	t.Parallel()

	store := newFakeStore("u1")
	l := newUserLoader(t, store, nil)

	if _, err := l.Load(context.Background(), "u1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := l.Load(context.Background(), "u1"); err != nil {
		t.Fatalf("cached load: %v", err)
	}
	if store.fetchCalls() != 1 {
		t.Fatalf("second load must be cached, got %d fetches", store.fetchCalls())
	}

	if !l.Invalidate(context.Background(), "u1") {
		t.Fatal("Invalidate must report a resident entry")
	}
	if _, err := l.Load(context.Background(), "u1"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if store.fetchCalls() != 2 {
		t.Fatalf("invalidated id must refetch, got %d", store.fetchCalls())
	}
}

func TestLoader_InvalidatePattern(t *testing.T) {
	t.Parallel()

	store := newFakeStore("user:1", "user:2", "media:9")
	l := newUserLoader(t, store, nil)

	if _, err := l.LoadMany(context.Background(), []string{"user:1", "user:2", "media:9"}); err != nil {
		t.Fatalf("warmup: %v", err)
	}

	n, err := l.InvalidatePattern(context.Background(), "user:*")
	if err != nil {
		t.Fatalf("InvalidatePattern: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 invalidated, got %d", n)
	}
	if st := l.Stats(); st.ItemCount != 1 {
		t.Fatalf("only media:9 should remain, got %+v", st)
	}
}

// With the cache disabled nothing is ever resident and every load window
// reaches the backend.
func TestLoader_DisabledCache(t *testing.T) {
	t.Parallel()

	store := newFakeStore("u1")
	l := newUserLoader(t, store, func(c *Config[user]) {
		c.Disabled = true
		c.Window = 5 * time.Millisecond
	})

	for i := 0; i < 3; i++ {
		if _, err := l.Load(context.Background(), "u1"); err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
	}
	if st := l.Stats(); st.ItemCount != 0 {
		t.Fatalf("disabled cache must stay empty, got %+v", st)
	}
	if store.fetchCalls() != 3 {
		t.Fatalf("every sequential load must fetch, got %d", store.fetchCalls())
	}
}

func TestLoader_ConfigErrors(t *testing.T) {
	t.Parallel()

	if _, err := New(Config[user]{Fetch: newFakeStore().fetch, MaxSize: 0, MaxAge: time.Hour}); err == nil {
		t.Fatal("zero MaxSize must be rejected")
	}
	if _, err := New(Config[user]{Fetch: nil, MaxSize: 10, MaxAge: time.Hour}); err == nil {
		t.Fatal("nil fetch must be rejected")
	}
}

// The facade feeds both cache and collapser signals into one collector.
func TestLoader_StatsCollector(t *testing.T) {
	t.Parallel()

	store := newFakeStore("u1")
	col := stats.NewCollector()
	l := newUserLoader(t, store, func(c *Config[user]) { c.Metrics = col })

	if _, err := l.Load(context.Background(), "u1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := l.Load(context.Background(), "u1"); err != nil {
		t.Fatalf("cached load: %v", err)
	}

	snap := col.Snapshot()
	if snap.Dispatches != 1 {
		t.Fatalf("want 1 dispatch, got %+v", snap)
	}
	if snap.Hits == 0 {
		t.Fatalf("second load must count as a hit, got %+v", snap)
	}
	if snap.Entries != 1 {
		t.Fatalf("want 1 resident entry, got %+v", snap)
	}
}

// UpdateConfig flows through to the underlying cache.
func TestLoader_UpdateConfig(t *testing.T) {
	t.Parallel()

	store := newFakeStore("u1")
	l := newUserLoader(t, store, nil)

	if _, err := l.Load(context.Background(), "u1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := l.UpdateConfig(cache.Config{Enabled: false, MaxSize: 10, MaxAge: time.Hour}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if st := l.Stats(); st.ItemCount != 0 {
		t.Fatalf("disabling must clear the cache, got %+v", st)
	}
}
