//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/Sternrassler/storefront-client/internal/testutil"
	"github.com/Sternrassler/storefront-client/pkg/cache"
	"github.com/Sternrassler/storefront-client/pkg/catalog"
	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/Sternrassler/storefront-client/pkg/domain"
	"github.com/Sternrassler/storefront-client/pkg/session"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// process is one storefront instance: its own client and loader over shared Redis.
type process struct {
	client *client.Client
	loader *catalog.Loader
}

func newProcess(t *testing.T, backend *testutil.MockBackend, redisClient *redis.Client) process {
	t.Helper()

	c, err := client.New(client.DefaultConfig(backend.URL()))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	cfg := catalog.DefaultConfig()
	cfg.DisablePrefetch = true
	loader := catalog.NewLoader(c, cache.NewRedis(redisClient), cfg)

	t.Cleanup(func() {
		loader.Close()
		c.Close()
	})
	return process{client: c, loader: loader}
}

func TestFullRequestFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	backend := testutil.NewMockBackend(testutil.SeedProducts(12)...)
	defer backend.Close()

	p := newProcess(t, backend, redisClient)
	ctx := context.Background()

	key := cache.NewKey(2, "", domain.SortPriceAsc)
	result, hit, err := p.loader.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if hit {
		t.Error("Expected first load to miss")
	}
	if result.Page != 2 || result.LastPage != 3 || len(result.Data) != 5 {
		t.Errorf("Unexpected page: %+v", result)
	}

	keys, err := redisClient.Keys(ctx, cache.KeyPrefix+":*").Result()
	if err != nil {
		t.Fatalf("KEYS failed: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("Expected 1 cached page in redis, got %v", keys)
	}
}

func TestCacheHit(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	backend := testutil.NewMockBackend(testutil.SeedProducts(8)...)
	defer backend.Close()

	first := newProcess(t, backend, redisClient)
	second := newProcess(t, backend, redisClient)
	ctx := context.Background()
	key := cache.NewKey(1, "product", domain.SortNameAsc)

	want, _, err := first.loader.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got, hit, err := second.loader.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !hit {
		t.Error("Expected second process to hit the shared cache")
	}
	if len(got.Data) != len(want.Data) || got.Total != want.Total {
		t.Errorf("Shared page differs: got %+v, want %+v", got, want)
	}
	if n := backend.ListCount(1, "product", domain.SortNameAsc); n != 1 {
		t.Errorf("Expected 1 backend request, got %d", n)
	}
}

func TestMutationClearsSharedCache(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	backend := testutil.NewMockBackend(testutil.SeedProducts(4)...)
	defer backend.Close()

	first := newProcess(t, backend, redisClient)
	second := newProcess(t, backend, redisClient)
	ctx := context.Background()
	key := cache.NewKey(1, "", "")

	if _, _, err := second.loader.Load(ctx, key); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	_, err := first.loader.CreateProduct(ctx, domain.ProductInput{
		Name:     "Cardamomo",
		Price:    decimal.RequireFromString("18.75"),
		UnitType: domain.UnitGrams,
	})
	if err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}

	if _, ok := second.loader.Lookup(ctx, key); ok {
		t.Error("Expected the other process to see the cleared cache")
	}

	result, hit, err := second.loader.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if hit || result.Total != 5 {
		t.Errorf("Expected a fresh page with 5 products, got hit=%v total=%d", hit, result.Total)
	}
}

func TestSessionSharedAcrossProcesses(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	backend := testutil.NewMockBackend(testutil.SeedProducts(2)...)
	defer backend.Close()
	backend.AddUser("admin@example.com", "secret")
	backend.RequireToken("not-issued-yet")

	first := newProcess(t, backend, redisClient)
	second := newProcess(t, backend, redisClient)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	firstSession := session.NewManager(first.client, session.NewRedisStore(redisClient, "shop"))
	defer firstSession.Bind(first.client)()
	secondSession := session.NewManager(second.client, session.NewRedisStore(redisClient, "shop"))
	defer secondSession.Bind(second.client)()

	if _, err := firstSession.Login(ctx, "admin@example.com", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// The second process authenticates with the credentials the first stored.
	backend.Reset()
	if err := second.loader.DeleteProduct(ctx, 2); err != nil {
		t.Fatalf("DeleteProduct with shared session failed: %v", err)
	}
	reqs := backend.Requests()
	if len(reqs) != 1 || reqs[0].Authorization != "Bearer access-1" {
		t.Errorf("Expected one request with Bearer access-1, got %+v", reqs)
	}

	firstEnded := make(chan session.Invalidation, 1)
	firstSession.Subscribe(func(ev session.Invalidation) { firstEnded <- ev })
	secondEnded := make(chan session.Invalidation, 1)
	secondSession.Subscribe(func(ev session.Invalidation) { secondEnded <- ev })

	backend.SetResponse("/products/1", testutil.NewUnauthorizedResponse())
	name := "Renamed"
	if _, err := second.loader.UpdateProduct(ctx, 1, domain.ProductPatch{Name: &name}); err == nil {
		t.Fatal("Expected update to fail with 401")
	}

	select {
	case ev := <-secondEnded:
		if ev.Reason != session.ReasonAuthExpired || ev.StatusCode != 401 {
			t.Errorf("Unexpected invalidation %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the process that saw the 401 to end its session")
	}

	if firstSession.Authenticated(ctx) {
		t.Error("Expected the shared session to be cleared in redis")
	}

	select {
	case <-firstEnded:
		t.Error("Expected only the process that saw the 401 to broadcast")
	case <-time.After(100 * time.Millisecond):
	}
}
