// Package lfu implements the Least-Frequently-Used eviction policy.
package lfu

import "github.com/DiDuV5/COSV5-sub018/policy"

type lfu struct{}

// New returns the LFU policy: victims are picked in ascending order of
// access count. Ties break on last access (older first) so selection is
// deterministic for equally-infrequent entries.
func New() policy.Policy { return lfu{} }

func (lfu) SelectVictims(items []policy.Item, required int64) []string {
	return policy.Take(items, required, func(a, b policy.Item) bool {
		if a.AccessCount != b.AccessCount {
			return a.AccessCount < b.AccessCount
		}
		return a.LastAccessed < b.LastAccessed
	})
}
