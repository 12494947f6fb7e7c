// Package redistier adapts a Redis client to the collapser's remote cache
// tier interface. The tier is strictly best effort: every error surfaces to
// the caller as a miss or a logged soft failure, never as a failed load.
package redistier

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DiDuV5/COSV5-sub018/batch"
)

// scanCount is the COUNT hint per SCAN page in DelPattern.
const scanCount = 256

// Tier implements batch.Remote over any go-redis universal client
// (single node, sentinel, or cluster).
type Tier struct {
	client redis.UniversalClient
	prefix string
}

// New wraps client. prefix namespaces every key (pass e.g. "user:" so
// separate entity kinds do not collide in one Redis database).
func New(client redis.UniversalClient, prefix string) *Tier {
	return &Tier{client: client, prefix: prefix}
}

func (t *Tier) key(k string) string { return t.prefix + k }

// Get returns the payload for key; redis.Nil maps to a plain miss.
func (t *Tier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := t.client.Get(ctx, t.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// Set stores the payload under key. A non-positive ttl stores without
// expiry, which should be avoided for cache tiers.
func (t *Tier) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return t.client.Set(ctx, t.key(key), val, ttl).Err()
}

// Del removes key.
func (t *Tier) Del(ctx context.Context, key string) error {
	return t.client.Del(ctx, t.key(key)).Err()
}

// DelPattern removes every key matching the glob pattern (Redis MATCH
// syntax, same glob family as path.Match) and returns how many keys were
// deleted. SCAN keeps the walk incremental so large keyspaces do not block
// the server the way KEYS would.
func (t *Tier) DelPattern(ctx context.Context, pattern string) (int, error) {
	iter := t.client.Scan(ctx, 0, t.key(pattern), scanCount).Iterator()

	deleted := 0
	chunk := make([]string, 0, scanCount)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		n, err := t.client.Del(ctx, chunk...).Result()
		deleted += int(n)
		chunk = chunk[:0]
		return err
	}

	for iter.Next(ctx) {
		chunk = append(chunk, iter.Val())
		if len(chunk) >= scanCount {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	if err := flush(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// Compile-time check: Tier implements the remote tier contract.
var _ batch.Remote = (*Tier)(nil)
