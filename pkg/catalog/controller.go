package catalog

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/Sternrassler/storefront-client/pkg/cache"
	"github.com/Sternrassler/storefront-client/pkg/domain"
	"github.com/Sternrassler/storefront-client/pkg/logging"
	"github.com/rs/zerolog"
)

var (
	// ErrSuperseded is returned by a fetch whose response arrived after a
	// newer fetch was issued. The page is cached but not displayed.
	ErrSuperseded = errors.New("superseded by a newer request")

	// ErrClosed is returned by a controller after Close.
	ErrClosed = errors.New("controller closed")
)

// Status is the state of the listing.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusLoaded  Status = "loaded"
	StatusError   Status = "error"
)

// Snapshot is the observable listing state.
type Snapshot struct {
	Status   Status
	Products []domain.Product
	Page     int
	LastPage int
	Total    int

	// Query is the normalized key of the most recent request.
	Query cache.Key

	// Err is set in StatusError. Products keep the last loaded page.
	Err error
}

// Controller exposes the current product page to list and dashboard views.
type Controller struct {
	loader *Loader
	logger zerolog.Logger

	// notifyMu serializes state changes together with their fan-out, so
	// subscribers see snapshots in the order the state changed.
	notifyMu sync.Mutex

	mu          sync.Mutex
	state       Snapshot
	seq         uint64
	closed      bool
	subscribers map[uint64]func(Snapshot)
	nextSub     uint64
}

// NewController creates an idle controller.
func NewController(loader *Loader) *Controller {
	return &Controller{
		loader:      loader,
		logger:      logging.NewLogger("list-controller"),
		state:       Snapshot{Status: StatusIdle, Products: []domain.Product{}},
		subscribers: make(map[uint64]func(Snapshot)),
	}
}

// FetchProducts displays the page selected by page, search and sort.
//
// A cache hit is published as StatusLoaded right away. A miss publishes
// StatusLoading, fetches, then publishes StatusLoaded or StatusError. If a
// newer FetchProducts call was issued in the meantime the result is not
// published and ErrSuperseded is returned.
func (c *Controller) FetchProducts(ctx context.Context, page int, search string, sort domain.Sort) (Snapshot, error) {
	key := cache.NewKey(page, search, sort)

	seq, err := c.begin()
	if err != nil {
		return Snapshot{}, err
	}

	if result, ok := c.loader.Lookup(ctx, key); ok {
		LoadsTotal.WithLabelValues(SourceCache).Inc()
		return c.loaded(seq, key, result)
	}

	return c.fetch(ctx, seq, key)
}

// Refresh reloads the current query from the network, replacing its cached page.
func (c *Controller) Refresh(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	key := c.state.Query
	c.mu.Unlock()

	seq, err := c.begin()
	if err != nil {
		return Snapshot{}, err
	}
	return c.fetch(ctx, seq, key.Normalize())
}

func (c *Controller) begin() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	c.seq++
	return c.seq, nil
}

func (c *Controller) fetch(ctx context.Context, seq uint64, key cache.Key) (Snapshot, error) {
	c.apply(seq, func(s *Snapshot) {
		s.Status = StatusLoading
		s.Query = key
		s.Err = nil
	})

	result, err := c.loader.Fetch(ctx, key)
	if err != nil {
		snap, ok := c.apply(seq, func(s *Snapshot) {
			s.Status = StatusError
			s.Err = err
		})
		if !ok {
			return c.superseded(seq, key)
		}
		c.logger.Warn().Err(err).
			Str("cache_key", key.String()).
			Msg("Product page fetch failed")
		return snap, err
	}

	return c.loaded(seq, key, result)
}

func (c *Controller) loaded(seq uint64, key cache.Key, result domain.PageResult) (Snapshot, error) {
	snap, ok := c.apply(seq, func(s *Snapshot) {
		s.Status = StatusLoaded
		s.Products = result.Data
		s.Page = key.Page
		s.LastPage = result.LastPage
		s.Total = result.Total
		s.Query = key
		s.Err = nil
	})
	if !ok {
		return c.superseded(seq, key)
	}

	c.loader.Prefetch(key, result.LastPage)
	return snap, nil
}

func (c *Controller) superseded(seq uint64, key cache.Key) (Snapshot, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return Snapshot{}, ErrClosed
	}

	SupersededTotal.Inc()
	c.logger.Debug().
		Uint64("seq", seq).
		Str("cache_key", key.String()).
		Msg("Discarding stale listing response")
	return c.Snapshot(), ErrSuperseded
}

// apply mutates the state when seq is still the latest request and
// notifies subscribers. It reports false for stale or closed updates.
func (c *Controller) apply(seq uint64, mutate func(*Snapshot)) (Snapshot, bool) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		return Snapshot{}, false
	}
	mutate(&c.state)
	snap := c.copyLocked()
	subscribers := make([]func(Snapshot), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subscribers = append(subscribers, fn)
	}
	c.mu.Unlock()

	for _, fn := range subscribers {
		fn(snap)
	}
	return snap, true
}

func (c *Controller) copyLocked() Snapshot {
	snap := c.state
	snap.Products = slices.Clone(c.state.Products)
	return snap
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyLocked()
}

// Subscribe registers fn for every published state. fn runs on the
// goroutine that caused the change, one snapshot at a time in publish
// order. It may call Snapshot but must not call the fetch methods or Close.
func (c *Controller) Subscribe(fn func(Snapshot)) (cancel func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// CreateProduct creates a product. The cache is cleared.
func (c *Controller) CreateProduct(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	return c.loader.CreateProduct(ctx, in)
}

// UpdateProduct updates a product. The cache is cleared.
func (c *Controller) UpdateProduct(ctx context.Context, id int64, patch domain.ProductPatch) (domain.Product, error) {
	return c.loader.UpdateProduct(ctx, id, patch)
}

// DeleteProduct deletes a product. The cache is cleared.
func (c *Controller) DeleteProduct(ctx context.Context, id int64) error {
	return c.loader.DeleteProduct(ctx, id)
}

// Close stops publishing. It waits for a delivery in progress, so no
// subscriber is called once Close returns. Fetches still in flight complete
// and cache their pages but no longer change the state. The loader is not closed.
func (c *Controller) Close() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.subscribers = make(map[uint64]func(Snapshot))
}
