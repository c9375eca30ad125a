// Package pagination assembles paginated catalog listings.
//
// A listing request follows a fixed sequence:
//
//	CACHE_CHECK -> HIT: respond
//	            -> MISS: FETCH_PAGE -> AGGREGATE -> TRANSFORM -> CACHE_STORE -> respond
//
// The item window and the total count are fetched concurrently. The total
// count comes from a full name-only scan, cached under products-total-count
// with a long TTL; page math always uses that cached value even when it is
// slightly stale relative to the page's items. Any fetch error aborts the
// request and nothing is cached.
//
// Example usage:
//
//	orch, err := pagination.NewOrchestrator(source, aggregator, images, stores, pagination.DefaultConfig())
//	res, err := orch.ListProducts(ctx, 1, 12)
//
// Page keys include the page size, so products-page-1-limit-12 and
// products-page-1-limit-24 are distinct entries.
//
// Prefetch warms several pages with a worker pool, reporting each page's
// outcome without stopping on failures.
package pagination
