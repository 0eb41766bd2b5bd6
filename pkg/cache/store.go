package cache

import (
	"context"
	"errors"

	"github.com/Sternrassler/storefront-client/pkg/domain"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store maps listing keys to fetched pages.
//
// Get is a pure lookup and returns ErrCacheMiss when the key is absent.
// Put overwrites unconditionally. Clear removes every entry.
type Store interface {
	Get(ctx context.Context, key Key) (domain.PageResult, error)
	Put(ctx context.Context, key Key, result domain.PageResult) error
	Clear(ctx context.Context) error
}

// Contains reports whether key is present in store.
// Lookup errors other than a miss are treated as absent.
func Contains(ctx context.Context, store Store, key Key) bool {
	ok, err := Present(ctx, store, key)
	return ok && err == nil
}

// Present reports whether key is in store. Only ErrCacheMiss means absent;
// any other lookup error is returned so callers can refuse to write.
func Present(ctx context.Context, store Store, key Key) (bool, error) {
	_, err := store.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrCacheMiss):
		return false, nil
	default:
		return false, err
	}
}
