package pagination

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/cache"
	"github.com/Sternrassler/storefront-client/pkg/domain"
	"github.com/Sternrassler/storefront-client/pkg/logging"
	"github.com/rs/zerolog"
)

// Config holds prefetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel prefetch requests
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
}

// DefaultConfig returns safe default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 2,
		Timeout:        10 * time.Second,
	}
}

// PageFetcher fetches a single page for a normalized key, bypassing the cache
type PageFetcher interface {
	FetchPage(ctx context.Context, key cache.Key) (domain.PageResult, error)
}

// PageFetcherFunc adapts a function to PageFetcher
type PageFetcherFunc func(ctx context.Context, key cache.Key) (domain.PageResult, error)

// FetchPage implements PageFetcher
func (f PageFetcherFunc) FetchPage(ctx context.Context, key cache.Key) (domain.PageResult, error) {
	return f(ctx, key)
}

// Target is the page that was just displayed
type Target struct {
	Page     int
	LastPage int
	Search   string
	Sort     domain.Sort
}

// Neighbors returns page-1 and page+1, limited to [1, lastPage]
func Neighbors(page, lastPage int) []int {
	out := make([]int, 0, 2)
	if page-1 >= 1 && page-1 <= lastPage {
		out = append(out, page-1)
	}
	if page+1 >= 1 && page+1 <= lastPage {
		out = append(out, page+1)
	}
	return out
}

// Prefetcher warms cache entries for adjacent pages in the background
type Prefetcher struct {
	fetcher PageFetcher
	store   cache.Store
	config  Config
	logger  zerolog.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	// putMu orders stores against Reset: once Reset returns no worker of
	// an earlier generation can write to the store.
	putMu sync.RWMutex

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	gen      uint64
	inflight map[string]uint64
	closed   bool
}

// NewPrefetcher creates a new prefetcher
func NewPrefetcher(fetcher PageFetcher, store cache.Store, config Config) *Prefetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Prefetcher{
		fetcher:  fetcher,
		store:    store,
		config:   config,
		logger:   logging.NewLogger("prefetcher"),
		ctx:      ctx,
		cancel:   cancel,
		sem:      make(chan struct{}, config.MaxConcurrency),
		inflight: make(map[string]uint64),
	}
}

// Prefetch schedules the neighbours of t. It never blocks on the network.
func (p *Prefetcher) Prefetch(t Target) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	for _, page := range Neighbors(t.Page, t.LastPage) {
		key := cache.NewKey(page, t.Search, t.Sort)
		id := key.String()

		if _, busy := p.inflight[id]; busy {
			PrefetchTotal.WithLabelValues(ResultDeduplicated).Inc()
			continue
		}
		p.inflight[id] = p.gen

		p.wg.Add(1)
		go p.worker(p.ctx, p.gen, key)
	}
}

// worker fetches one neighbour page
func (p *Prefetcher) worker(ctx context.Context, gen uint64, key cache.Key) {
	defer p.wg.Done()
	defer p.done(key, gen)

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		PrefetchTotal.WithLabelValues(ResultCancelled).Inc()
		return
	}

	present, err := cache.Present(ctx, p.store, key)
	if err != nil {
		PrefetchTotal.WithLabelValues(ResultFailed).Inc()
		p.logger.Warn().Err(err).Str("cache_key", key.String()).Msg("Cache lookup failed, skipping prefetch")
		return
	}
	if present {
		PrefetchTotal.WithLabelValues(ResultCached).Inc()
		return
	}

	start := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	result, err := p.fetcher.FetchPage(fetchCtx, key)
	cancel()
	PrefetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			PrefetchTotal.WithLabelValues(ResultCancelled).Inc()
			return
		}
		PrefetchTotal.WithLabelValues(ResultFailed).Inc()
		p.logger.Warn().
			Err(err).
			Str("cache_key", key.String()).
			Int("page", key.Page).
			Msg("Prefetch failed")
		return
	}

	outcome := p.save(ctx, key, result)
	PrefetchTotal.WithLabelValues(outcome).Inc()
	if outcome == ResultStored {
		p.logger.Debug().
			Str("cache_key", key.String()).
			Int("page", key.Page).
			Dur("duration", time.Since(start)).
			Msg("Prefetched page")
	}
}

// save writes result unless the page appeared meanwhile or the generation was reset.
func (p *Prefetcher) save(ctx context.Context, key cache.Key, result domain.PageResult) string {
	p.putMu.RLock()
	defer p.putMu.RUnlock()

	if ctx.Err() != nil {
		return ResultCancelled
	}
	// A foreground fetch may have stored the page while we were fetching.
	present, err := cache.Present(ctx, p.store, key)
	if err != nil {
		p.logger.Warn().Err(err).Str("cache_key", key.String()).Msg("Cache lookup failed, not storing prefetched page")
		return ResultFailed
	}
	if present {
		return ResultCached
	}
	if err := p.store.Put(ctx, key, result); err != nil {
		p.logger.Warn().Err(err).Str("cache_key", key.String()).Msg("Prefetch store failed")
		return ResultFailed
	}
	return ResultStored
}

func (p *Prefetcher) done(key cache.Key, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight[key.String()] == gen {
		delete(p.inflight, key.String())
	}
}

// Reset cancels in-flight prefetches without closing the prefetcher. It is
// called when the cache is cleared so that no page fetched before the
// clear is written after it.
func (p *Prefetcher) Reset() {
	p.putMu.Lock()
	defer p.putMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancel()
	p.gen++
	p.inflight = make(map[string]uint64)
	if !p.closed {
		p.ctx, p.cancel = context.WithCancel(context.Background())
	}
}

// Pending returns the number of prefetches in flight
func (p *Prefetcher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

// Wait blocks until every scheduled prefetch has finished
func (p *Prefetcher) Wait() {
	p.wg.Wait()
}

// Close cancels in-flight prefetches and waits for the workers to exit.
// Prefetch calls after Close are ignored.
func (p *Prefetcher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
}
