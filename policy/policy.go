package policy

import "sort"

// Item is a read-only snapshot of one cached entry, handed to a policy
// when the cache needs space. Timestamps are UnixNano.
type Item struct {
	Key          string
	Size         int64
	AccessCount  uint64
	CreatedAt    int64
	LastAccessed int64
}

// Policy selects eviction victims. SelectVictims must be a pure function:
// given the resident items and the space that has to be freed, it returns
// the keys to remove, in eviction order, stopping as soon as the cumulative
// freed size meets required (no over-eviction).
//
// Policies never mutate cache state; the cache performs the actual removal.
type Policy interface {
	SelectVictims(items []Item, required int64) []string
}

// Strategy names a built-in eviction policy in configuration.
type Strategy string

const (
	LRU  Strategy = "lru"
	LFU  Strategy = "lfu"
	FIFO Strategy = "fifo"
)

// Valid reports whether s names a built-in strategy.
func (s Strategy) Valid() bool {
	switch s {
	case LRU, LFU, FIFO:
		return true
	}
	return false
}

// Take is the shared selection loop used by the built-in policies:
// sort a copy of items by less (ascending = evict first) and accumulate
// keys until at least required size would be freed.
//
// The sort is stable so equal items keep snapshot order and selection
// stays deterministic.
func Take(items []Item, required int64, less func(a, b Item) bool) []string {
	if required <= 0 || len(items) == 0 {
		return nil
	}
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	var (
		freed int64
		keys  []string
	)
	for _, it := range sorted {
		if freed >= required {
			break
		}
		keys = append(keys, it.Key)
		freed += it.Size
	}
	return keys
}
