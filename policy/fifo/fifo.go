// Package fifo implements the First-In-First-Out eviction policy.
package fifo

import "github.com/DiDuV5/COSV5-sub018/policy"

type fifo struct{}

// New returns the FIFO policy: victims are picked in ascending order of
// creation time, regardless of access history.
func New() policy.Policy { return fifo{} }

func (fifo) SelectVictims(items []policy.Item, required int64) []string {
	return policy.Take(items, required, func(a, b policy.Item) bool {
		return a.CreatedAt < b.CreatedAt
	})
}
