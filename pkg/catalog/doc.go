// Package catalog owns the product listing state shown to users.
//
// A Loader reads pages through the paginated cache and falls back to the
// resource client on a miss. Mutations made through the Loader clear the
// cache so the next read is fresh. A Controller sits on top of a Loader and
// exposes the current page as an observable Snapshot:
//
//	loader := catalog.NewLoader(apiClient, cache.NewMemory(), catalog.DefaultConfig())
//	defer loader.Close()
//
//	ctrl := catalog.NewController(loader)
//	defer ctrl.Close()
//
//	cancel := ctrl.Subscribe(func(s catalog.Snapshot) { render(s) })
//	defer cancel()
//
//	snap, err := ctrl.FetchProducts(ctx, 1, "pepper", domain.SortPriceAsc)
//
// Cache hits move the controller straight to StatusLoaded. Misses pass
// through StatusLoading. Responses for superseded requests are cached but
// never displayed.
package catalog
