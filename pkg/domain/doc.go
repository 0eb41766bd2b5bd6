// Package domain holds the storefront data model shared by the cache, the
// resource client, the list controller, the cart and checkout.
//
// Products are created and mutated only by the backend. Within a fetched
// PageResult they are treated as immutable values: callers must not modify
// the Data slice of a result obtained from the cache.
package domain
