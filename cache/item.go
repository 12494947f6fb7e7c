package cache

import "time"

// entry is the resident representation of one cached item.
// All fields are guarded by the cache mutex.
type entry[V any] struct {
	val  V
	size int64
	etag string

	accessCount uint64

	// UnixNano timestamps. expireAt is absolute; Set derives it from
	// MaxAge, SetWithTTL from the per-entry TTL.
	createdAt    int64
	lastAccessed int64
	expireAt     int64
}

// Entry is a point-in-time copy of a cached item and its metadata,
// as returned by GetEntry.
type Entry[V any] struct {
	Key   string
	Value V
	Size  int64

	// ETag is an opaque fingerprint attached via SetTagged.
	// The cache never interprets it.
	ETag string

	AccessCount  uint64
	CreatedAt    time.Time
	LastAccessed time.Time
	ExpiresAt    time.Time
}
