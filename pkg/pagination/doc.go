// Package pagination warms the product page cache around the page a user is
// looking at.
//
// After every successful navigation to page N the catalog asks the
// Prefetcher to load pages N-1 and N+1 with the same search and sort. Each
// neighbour is fetched by a bounded worker pool, in the background, and only
// when it is not cached yet.
//
// Example usage:
//
//	p := pagination.NewPrefetcher(loader, store, pagination.DefaultConfig())
//	defer p.Close()
//	p.Prefetch(pagination.Target{Page: 3, LastPage: 10, Search: "pepper"})
//
// The prefetcher:
//   - Never overwrites a cached page (presence is checked before fetching and again before storing)
//   - Keys pages with cache.NewKey, exactly like the foreground path
//   - Deduplicates keys that are already being fetched
//   - Swallows failures: they are logged and counted, never cached
//   - Stops in-flight work on Close
package pagination
