// Package lru implements the Least-Recently-Used eviction policy.
package lru

import "github.com/DiDuV5/COSV5-sub018/policy"

type lru struct{}

// New returns the LRU policy: victims are picked in ascending order of
// last access, so the longest-untouched entries go first.
func New() policy.Policy { return lru{} }

func (lru) SelectVictims(items []policy.Item, required int64) []string {
	return policy.Take(items, required, func(a, b policy.Item) bool {
		return a.LastAccessed < b.LastAccessed
	})
}
