// Package cache provides the paginated product cache.
//
// A cache entry maps one normalized listing filter (page, search, sort) to the
// PageResult the backend returned for it. Entries never expire and the cache
// has no size bound; it is cleared explicitly after any product mutation so
// that stale pages are not served.
//
// # Keys
//
// Every producer and consumer of keys goes through NewKey / Key.Normalize, so an
// absent search and an empty search, or an absent sort and the default sort,
// always land on the same entry:
//
//	cache.NewKey(1, "", "").String()
//	// products:page=1:search=:sort=createdAt_desc
//
// # Stores
//
//   - Memory: process-local map, the default.
//   - Redis: shared store for the storefront proxy, values JSON-encoded under
//     the "products:" prefix, cleared with SCAN + DEL.
//
// # Metrics
//
//   - storefront_cache_hits_total{layer} - Cache hits
//   - storefront_cache_misses_total{layer} - Cache misses
//   - storefront_cache_puts_total{layer} - Stored pages
//   - storefront_cache_clears_total{layer} - Explicit invalidations
//   - storefront_cache_errors_total{operation} - Store operation errors
package cache
