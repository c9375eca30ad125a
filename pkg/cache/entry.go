package cache

import (
	"time"
)

// Entry is a single cached value with its expiry and access bookkeeping.
type Entry[T any] struct {
	// Value is the cached payload
	Value T

	// CreatedAt is when the value was stored (reset on every Set)
	CreatedAt time.Time

	// TTL is how long the value stays valid after CreatedAt
	TTL time.Duration

	// AccessCount is the number of successful Gets since the entry was created
	AccessCount int

	// LastAccessedAt drives LRU eviction
	LastAccessedAt time.Time
}

// IsExpired reports whether the entry is logically absent at now.
func (e *Entry[T]) IsExpired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// Remaining returns the time left before expiry.
// Returns 0 if already expired.
func (e *Entry[T]) Remaining(now time.Time) time.Duration {
	left := e.TTL - now.Sub(e.CreatedAt)
	if left < 0 {
		return 0
	}
	return left
}
