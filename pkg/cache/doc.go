// Package cache provides the storefront's TTL/LRU cache stores.
//
// Two flavors share the Store contract so that aggregation and pagination
// code never needs to know where entries live:
//
//   - Memory: in-process, lost on restart.
//   - Persisted: a Memory store mirrored into a durable Backend as one flat
//     JSON map per namespace, reloaded at startup.
//
// # Expiry and eviction
//
// An entry is logically absent once now - CreatedAt > TTL. Expired entries
// are removed lazily: on Get, and by the cleanup pass that runs before
// every Set. When a Set would grow the store past MaxSize, the entry with
// the oldest LastAccessedAt is evicted. A TTL <= 0 is never cacheable.
//
// # Basic Usage
//
//	prices := cache.NewMemory[catalog.PriceInfo](cache.Options{
//		Name:       "prices",
//		MaxSize:    1000,
//		DefaultTTL: 15 * time.Minute,
//	})
//
//	prices.Set(cache.PriceKey("SKU-001"), info)
//	if info, ok := prices.Get(cache.PriceKey("SKU-001")); ok {
//		// hit
//	}
//
// # Persisted namespaces
//
//	backend := cache.NewRedisBackend(redisClient)
//	pages, err := cache.NewPersisted[pagination.ProductPage](ctx, backend,
//		cache.NamespaceProducts, cache.Options{DefaultTTL: 30 * time.Minute})
//
// The serialized format is
//
//	{ "<key>": { "value": <json>, "timestamp": <unix ms>, "ttl": <ms> } }
//
// Entries missing any of these fields, or whose value does not decode, are
// discarded on load and treated as misses.
//
// # Metrics
//
//   - storefront_cache_hits_total{cache}
//   - storefront_cache_misses_total{cache}
//   - storefront_cache_evictions_total{cache}
//   - storefront_cache_expirations_total{cache}
//   - storefront_cache_entries{cache}
//   - storefront_cache_persist_errors_total{cache, operation}
package cache
