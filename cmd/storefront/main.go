package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Sternrassler/storefront-client/internal/config"
	"github.com/Sternrassler/storefront-client/pkg/cache"
	"github.com/Sternrassler/storefront-client/pkg/cart"
	"github.com/Sternrassler/storefront-client/pkg/catalog"
	"github.com/Sternrassler/storefront-client/pkg/checkout"
	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/Sternrassler/storefront-client/pkg/domain"
	"github.com/Sternrassler/storefront-client/pkg/logging"
	"github.com/Sternrassler/storefront-client/pkg/metrics"
	"github.com/Sternrassler/storefront-client/pkg/pagination"
	"github.com/Sternrassler/storefront-client/pkg/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		// Logging is not configured yet.
		fmt.Fprintf(os.Stderr, "storefront: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging())
	log.Info().Str("config", cfg.String()).Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Storefront stopped")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// Setup Redis (optional)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	}

	apiClient, err := client.New(client.Config{
		BaseURL:   cfg.APIURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.HTTPTimeout,
	})
	if err != nil {
		return fmt.Errorf("create resource client: %w", err)
	}
	defer apiClient.Close()

	pages, sessions := stores(redisClient, cfg.SessionName)

	manager := session.NewManager(apiClient, sessions)
	defer manager.Bind(apiClient)()
	manager.Subscribe(func(ev session.Invalidation) {
		log.Warn().
			Str("reason", ev.Reason).
			Int("status_code", ev.StatusCode).
			Msg("Backend session ended, continuing anonymously")
	})

	if cfg.APIEmail != "" {
		if _, err := manager.Login(ctx, cfg.APIEmail, cfg.APIPassword); err != nil {
			return fmt.Errorf("login as %s: %w", cfg.APIEmail, err)
		}
	}

	loader := catalog.NewLoader(apiClient, pages, catalog.Config{
		PageSize: cfg.PageSize,
		Prefetch: pagination.DefaultConfig(),
	})
	defer loader.Close()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newMux(redisClient, loader, cfg.WhatsAppPhone),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("backend", cfg.APIURL).
			Int("page_size", cfg.PageSize).
			Msg("Starting storefront server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down storefront server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// stores picks Redis-backed stores when Redis is configured.
func stores(redisClient *redis.Client, sessionName string) (cache.Store, session.Store) {
	if redisClient == nil {
		return cache.NewMemory(), session.NewMemoryStore()
	}
	return cache.NewRedis(redisClient), session.NewRedisStore(redisClient, sessionName)
}

func newMux(redisClient *redis.Client, loader *catalog.Loader, phone string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(redisClient))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /products", productsHandler(loader))
	// Mutations act with the caller's bearer token, never the proxy's session.
	mux.HandleFunc("POST /products", createProductHandler(loader))
	mux.HandleFunc("PATCH /products/{id}", updateProductHandler(loader))
	mux.HandleFunc("DELETE /products/{id}", deleteProductHandler(loader))
	mux.HandleFunc("POST /checkout", checkoutHandler(phone))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func productsHandler(loader *catalog.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		page := 1
		if raw := q.Get("page"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, &domain.ValidationError{Field: "page", Message: "must be an integer >= 1"})
				return
			}
			page = n
		}

		sort, err := domain.ParseSort(q.Get("sort"))
		if err != nil {
			writeError(w, err)
			return
		}

		key := cache.NewKey(page, q.Get("search"), sort)
		result, hit, err := loader.Load(r.Context(), key)
		if err != nil {
			writeError(w, err)
			return
		}
		loader.Prefetch(key, result.LastPage)

		if hit {
			w.Header().Set("X-Cache", "HIT")
		} else {
			w.Header().Set("X-Cache", "MISS")
		}
		writeJSON(w, http.StatusOK, result)
	}
}

type productRequest struct {
	Name     *string          `json:"name"`
	Price    *decimal.Decimal `json:"price"`
	UnitType *domain.UnitType `json:"unitType"`
	Image    *string          `json:"image"`
}

func (p productRequest) patch() domain.ProductPatch {
	return domain.ProductPatch{Name: p.Name, Price: p.Price, UnitType: p.UnitType, Image: p.Image}
}

func (p productRequest) input() domain.ProductInput {
	var in domain.ProductInput
	if p.Name != nil {
		in.Name = *p.Name
	}
	if p.Price != nil {
		in.Price = *p.Price
	}
	if p.UnitType != nil {
		in.UnitType = *p.UnitType
	}
	if p.Image != nil {
		in.Image = *p.Image
	}
	return in
}

func createProductHandler(loader *catalog.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, ok := callerContext(r)
		if !ok {
			writeUnauthorized(w)
			return
		}

		var req productRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		p, err := loader.CreateProduct(ctx, req.input())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func updateProductHandler(loader *catalog.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, ok := callerContext(r)
		if !ok {
			writeUnauthorized(w)
			return
		}

		id, err := pathID(r)
		if err != nil {
			writeError(w, err)
			return
		}

		var req productRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		p, err := loader.UpdateProduct(ctx, id, req.patch())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func deleteProductHandler(loader *catalog.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, ok := callerContext(r)
		if !ok {
			writeUnauthorized(w)
			return
		}

		id, err := pathID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := loader.DeleteProduct(ctx, id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type checkoutRequest struct {
	Items           []cart.Item `json:"items"`
	CustomerName    string      `json:"customerName"`
	DeliveryAddress string      `json:"deliveryAddress"`
	Notes           string      `json:"notes"`
}

type checkoutResponse struct {
	URL   string `json:"url"`
	Total string `json:"total"`
}

func checkoutHandler(phone string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkoutRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}

		c := cart.New()
		for _, item := range req.Items {
			if err := c.Add(item); err != nil {
				writeError(w, err)
				return
			}
		}

		handoff, err := checkout.Checkout(c, checkout.Details{
			CustomerName:    req.CustomerName,
			DeliveryAddress: req.DeliveryAddress,
			Notes:           req.Notes,
		}, phone)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, checkoutResponse{URL: handoff.URL, Total: handoff.Order.Total.StringFixed(2)})
	}
}
