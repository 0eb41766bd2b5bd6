package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Sternrassler/storefront-client/pkg/cache"
	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/Sternrassler/storefront-client/pkg/domain"
	"github.com/Sternrassler/storefront-client/pkg/logging"
	"github.com/Sternrassler/storefront-client/pkg/pagination"
	"github.com/rs/zerolog"
)

// ProductAPI is the part of the resource client the catalog needs.
// *client.Client implements it.
type ProductAPI interface {
	FetchPage(ctx context.Context, q client.PageQuery) (domain.PageResult, error)
	CreateProduct(ctx context.Context, in domain.ProductInput) (domain.Product, error)
	UpdateProduct(ctx context.Context, id int64, patch domain.ProductPatch) (domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

// Config holds loader configuration.
type Config struct {
	// PageSize is the limit sent with every listing request.
	PageSize int

	// Prefetch configures neighbour warming.
	Prefetch pagination.Config

	// DisablePrefetch turns neighbour warming off.
	DisablePrefetch bool
}

// DefaultConfig returns the default loader configuration.
func DefaultConfig() Config {
	return Config{
		PageSize: 5,
		Prefetch: pagination.DefaultConfig(),
	}
}

// Loader reads product pages through the cache.
type Loader struct {
	api        ProductAPI
	store      cache.Store
	config     Config
	prefetcher *pagination.Prefetcher
	logger     zerolog.Logger

	// gen counts cache clears. A fetch only stores its page when no clear
	// happened since it started.
	mu  sync.RWMutex
	gen uint64
}

// NewLoader creates a loader. The store is owned by the caller.
func NewLoader(api ProductAPI, store cache.Store, config Config) *Loader {
	if config.PageSize <= 0 {
		config.PageSize = 5
	}

	l := &Loader{
		api:    api,
		store:  store,
		config: config,
		logger: logging.NewLogger("catalog"),
	}
	if !config.DisablePrefetch {
		l.prefetcher = pagination.NewPrefetcher(pagination.PageFetcherFunc(l.fetch), store, config.Prefetch)
	}
	return l
}

// PageSize returns the listing limit.
func (l *Loader) PageSize() int {
	return l.config.PageSize
}

// Lookup is a pure cache read.
func (l *Loader) Lookup(ctx context.Context, key cache.Key) (domain.PageResult, bool) {
	key = key.Normalize()

	result, err := l.store.Get(ctx, key)
	if err == nil {
		return result, true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		// Fall back to the network on broken entries or an unreachable store.
		l.logger.Warn().Err(err).Str("cache_key", key.String()).Msg("Cache read failed")
	}
	return domain.PageResult{}, false
}

// Load returns the cached page for key, or fetches and caches it.
// hit reports whether the page came from the cache.
func (l *Loader) Load(ctx context.Context, key cache.Key) (result domain.PageResult, hit bool, err error) {
	key = key.Normalize()

	if result, ok := l.Lookup(ctx, key); ok {
		LoadsTotal.WithLabelValues(SourceCache).Inc()
		return result, true, nil
	}

	result, err = l.Fetch(ctx, key)
	if err != nil {
		return domain.PageResult{}, false, err
	}
	return result, false, nil
}

// Fetch always goes to the network and stores the page on success.
func (l *Loader) Fetch(ctx context.Context, key cache.Key) (domain.PageResult, error) {
	key = key.Normalize()

	l.mu.RLock()
	gen := l.gen
	l.mu.RUnlock()

	result, err := l.fetch(ctx, key)
	if err != nil {
		LoadsTotal.WithLabelValues(SourceError).Inc()
		return domain.PageResult{}, err
	}
	LoadsTotal.WithLabelValues(SourceNetwork).Inc()

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.gen != gen {
		l.logger.Debug().Str("cache_key", key.String()).Msg("Cache cleared during fetch, not storing page")
		return result, nil
	}
	if err := l.store.Put(ctx, key, result); err != nil {
		l.logger.Warn().Err(err).Str("cache_key", key.String()).Msg("Cache write failed")
	}
	return result, nil
}

// fetch issues the listing request for key.
func (l *Loader) fetch(ctx context.Context, key cache.Key) (domain.PageResult, error) {
	return l.api.FetchPage(ctx, client.PageQuery{
		Page:   key.Page,
		Limit:  l.config.PageSize,
		Search: key.Search,
		Sort:   key.Sort,
	})
}

// Prefetch warms the neighbours of a page that was just displayed.
func (l *Loader) Prefetch(key cache.Key, lastPage int) {
	if l.prefetcher == nil {
		return
	}
	key = key.Normalize()
	l.prefetcher.Prefetch(pagination.Target{
		Page:     key.Page,
		LastPage: lastPage,
		Search:   key.Search,
		Sort:     key.Sort,
	})
}

// WaitPrefetch blocks until scheduled prefetches finish.
func (l *Loader) WaitPrefetch() {
	if l.prefetcher != nil {
		l.prefetcher.Wait()
	}
}

// Invalidate clears every cached page and drops pages still being fetched.
func (l *Loader) Invalidate(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.gen++
	if l.prefetcher != nil {
		l.prefetcher.Reset()
	}
	InvalidationsTotal.Inc()

	if err := l.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear product cache: %w", err)
	}
	return nil
}

// CreateProduct creates a product and clears the cache.
func (l *Loader) CreateProduct(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	p, err := l.api.CreateProduct(ctx, in)
	if err != nil {
		return domain.Product{}, err
	}
	l.invalidateAfter(ctx, "create", p.ID)
	return p, nil
}

// UpdateProduct updates a product and clears the cache.
func (l *Loader) UpdateProduct(ctx context.Context, id int64, patch domain.ProductPatch) (domain.Product, error) {
	p, err := l.api.UpdateProduct(ctx, id, patch)
	if err != nil {
		return domain.Product{}, err
	}
	l.invalidateAfter(ctx, "update", id)
	return p, nil
}

// DeleteProduct deletes a product and clears the cache.
func (l *Loader) DeleteProduct(ctx context.Context, id int64) error {
	if err := l.api.DeleteProduct(ctx, id); err != nil {
		return err
	}
	l.invalidateAfter(ctx, "delete", id)
	return nil
}

// invalidateAfter clears the cache once the backend accepted a change.
// The change stands even when the clear fails, so the failure is only logged.
func (l *Loader) invalidateAfter(ctx context.Context, op string, id int64) {
	if err := l.Invalidate(ctx); err != nil {
		l.logger.Warn().
			Err(err).
			Str("operation", op).
			Int64("product_id", id).
			Msg("Product changed but the cache could not be cleared")
	}
}

// Close stops background prefetching. The store is left untouched.
func (l *Loader) Close() {
	if l.prefetcher != nil {
		l.prefetcher.Close()
	}
}
