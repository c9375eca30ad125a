package cache

import (
	"errors"
	"time"
)

const (
	// DefaultMaxSize bounds a store when Options.MaxSize is not set
	DefaultMaxSize = 1000

	// DefaultTTL is the fallback TTL when Options.DefaultTTL is not set
	DefaultTTL = 5 * time.Minute
)

var (
	// ErrCacheMiss indicates the requested namespace or key was not found
	ErrCacheMiss = errors.New("cache miss")

	// ErrCorruptEntry indicates a persisted entry failed strict decoding
	ErrCorruptEntry = errors.New("corrupt cache entry")
)

// Store is the contract shared by the in-process and persisted caches.
type Store[T any] interface {
	// Get returns the value for key, or false when missing or expired.
	Get(key string) (T, bool)

	// Has reports whether Get would return a value.
	Has(key string) bool

	// Set stores value under key with the store's default TTL.
	Set(key string, value T)

	// SetWithTTL stores value under key with an explicit TTL.
	// A ttl <= 0 removes key instead of storing anything.
	SetWithTTL(key string, value T, ttl time.Duration)

	// Delete removes key.
	Delete(key string)

	// Clear removes every entry.
	Clear()

	// Cleanup removes all expired entries and returns how many were removed.
	Cleanup() int

	// Stats returns diagnostic counters.
	Stats() Stats

	// Name identifies the store in logs and metrics.
	Name() string
}

// Invalidatable is the type-erased subset of Store used by invalidation hooks.
type Invalidatable interface {
	Delete(key string)
	Clear()
	Name() string
}

// Stats is a diagnostic snapshot of a store.
type Stats struct {
	Name         string `json:"name"`
	Size         int    `json:"size"`
	ExpiredCount int    `json:"expiredCount"`
	MaxSize      int    `json:"maxSize"`
}

// Observer receives cache events, typically a telemetry recorder.
type Observer interface {
	CacheHit(cache string)
	CacheMiss(cache string)
	CacheEviction(cache string)
	CacheExpiration(cache string)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string)        {}
func (nopObserver) CacheMiss(string)       {}
func (nopObserver) CacheEviction(string)   {}
func (nopObserver) CacheExpiration(string) {}

// Options configures a store.
type Options struct {
	// Name is used for metrics labels and logs
	Name string

	// MaxSize is the maximum number of entries (default DefaultMaxSize)
	MaxSize int

	// DefaultTTL applies when Set is called without an override
	DefaultTTL time.Duration

	// Clock returns the current time (default time.Now)
	Clock func() time.Time

	// Observer receives hit/miss/eviction/expiration events
	Observer Observer

	// SaveDelay batches the backend writes of a Persisted store: mutations
	// within the delay are saved together. Zero saves after every mutation.
	SaveDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "default"
	}
	if o.MaxSize <= 0 {
		o.MaxSize = DefaultMaxSize
	}
	if o.DefaultTTL == 0 {
		o.DefaultTTL = DefaultTTL
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}
