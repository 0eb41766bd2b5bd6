package session

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/storefront-client/internal/testutil"
	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

func TestCredentials_IsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		expired   bool
	}{
		{name: "unknown expiry", expiresAt: time.Time{}, expired: false},
		{name: "valid for an hour", expiresAt: time.Now().Add(time.Hour), expired: false},
		{name: "within skew", expiresAt: time.Now().Add(ExpirySkew / 2), expired: true},
		{name: "in the past", expiresAt: time.Now().Add(-time.Minute), expired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := Credentials{AccessToken: "a", ExpiresAt: tt.expiresAt}
			if got := creds.IsExpired(); got != tt.expired {
				t.Errorf("IsExpired() = %v, want %v", got, tt.expired)
			}
		})
	}
}

func TestCredentials_TimeUntilExpiry(t *testing.T) {
	if d := (Credentials{}).TimeUntilExpiry(); d != 0 {
		t.Errorf("unknown expiry: got %v, want 0", d)
	}
	if d := (Credentials{ExpiresAt: time.Now().Add(-time.Hour)}).TimeUntilExpiry(); d != 0 {
		t.Errorf("past expiry: got %v, want 0", d)
	}
	d := (Credentials{ExpiresAt: time.Now().Add(time.Hour)}).TimeUntilExpiry()
	if d <= 59*time.Minute || d > time.Hour {
		t.Errorf("TimeUntilExpiry() = %v, want about an hour", d)
	}
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	exp := now.Add(15 * time.Minute)

	tests := []struct {
		name     string
		resp     client.TokenResponse
		expected time.Time
	}{
		{
			name:     "expires_in wins",
			resp:     client.TokenResponse{AccessToken: signedToken(t, jwt.MapClaims{"exp": exp.Unix()}), ExpiresIn: 60},
			expected: now.Add(time.Minute),
		},
		{
			name:     "jwt exp claim",
			resp:     client.TokenResponse{AccessToken: signedToken(t, jwt.MapClaims{"exp": exp.Unix()})},
			expected: exp,
		},
		{
			name:     "jwt without exp",
			resp:     client.TokenResponse{AccessToken: signedToken(t, jwt.MapClaims{"sub": "1"})},
			expected: time.Time{},
		},
		{
			name:     "opaque token",
			resp:     client.TokenResponse{AccessToken: "access-1"},
			expected: time.Time{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenExpiry(tt.resp, now)
			if !got.Equal(tt.expected) {
				t.Errorf("tokenExpiry() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestFromTokens_KeepsPreviousRefreshToken(t *testing.T) {
	prev := Credentials{AccessToken: "old", RefreshToken: "r-1", Email: "a@example.com"}
	got := fromTokens(client.TokenResponse{AccessToken: "new"}, prev, time.Now())

	if got.RefreshToken != "r-1" || got.Email != "a@example.com" || got.AccessToken != "new" {
		t.Errorf("fromTokens() = %+v", got)
	}
}

func storeContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Load(ctx); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("Load on empty store = %v, want ErrNoCredentials", err)
	}

	creds := Credentials{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Unix(1_900_000_000, 0),
		Email:        "admin@example.com",
	}
	if err := store.Save(ctx, creds); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.AccessToken != creds.AccessToken || got.RefreshToken != creds.RefreshToken ||
		!got.ExpiresAt.Equal(creds.ExpiresAt) || got.Email != creds.Email {
		t.Errorf("Load() = %+v, want %+v", got, creds)
	}

	// Unknown expiry survives the round trip.
	if err := store.Save(ctx, Credentials{AccessToken: "opaque"}); err != nil {
		t.Fatal(err)
	}
	got, err = store.Load(ctx)
	if err != nil || !got.ExpiresAt.IsZero() || got.RefreshToken != "" {
		t.Errorf("Load() = %+v, %v", got, err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Load after Clear = %v, want ErrNoCredentials", err)
	}
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	storeContract(t, NewRedisStore(rdb, "test"))

	// Sessions are namespaced.
	a := NewRedisStore(rdb, "a")
	b := NewRedisStore(rdb, "b")
	ctx := context.Background()
	if err := a.Save(ctx, Credentials{AccessToken: "token-a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Load(ctx); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("session b sees session a: %v", err)
	}
	if !mr.Exists("storefront:session:a:access_token") {
		t.Error("expected key storefront:session:a:access_token")
	}
}

func TestNewRedisStore_Panic(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewRedisStore(nil) should panic")
		}
	}()
	NewRedisStore(nil, "x")
}

// fakeAuth is a scripted Authenticator.
type fakeAuth struct {
	mu         sync.Mutex
	refreshes  int
	refreshErr error
	block      chan struct{}
	entered    chan struct{}
	expiresIn  int
}

func (f *fakeAuth) Login(_ context.Context, email, password string) (client.TokenResponse, error) {
	if password != "pw" {
		return client.TokenResponse{}, &client.RequestError{StatusCode: 401, ErrorClass: client.ErrorClassAuth}
	}
	return client.TokenResponse{AccessToken: "login-token", RefreshToken: "r-0", ExpiresIn: f.expiresIn,
		User: &client.AuthUser{Email: email}}, nil
}

func (f *fakeAuth) Refresh(ctx context.Context, refreshToken string) (client.TokenResponse, error) {
	f.mu.Lock()
	f.refreshes++
	block, entered, err := f.block, f.entered, f.refreshErr
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return client.TokenResponse{}, err
	}
	return client.TokenResponse{AccessToken: "refreshed-token", ExpiresIn: 3600}, nil
}

func (f *fakeAuth) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func expiredSession(t *testing.T, store Store, refreshToken string) {
	t.Helper()
	err := store.Save(context.Background(), Credentials{
		AccessToken:  "expired-token",
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestManager_TokenWithoutSession(t *testing.T) {
	m := NewManager(&fakeAuth{}, NewMemoryStore())

	token, err := m.Token(context.Background())
	if err != nil || token != "" {
		t.Errorf("Token() = %q, %v, want anonymous", token, err)
	}
	if m.Authenticated(context.Background()) {
		t.Error("Authenticated() = true without a session")
	}
}

func TestManager_LoginAndToken(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(&fakeAuth{expiresIn: 3600}, store)
	ctx := context.Background()

	if _, err := m.Login(ctx, "admin@example.com", "wrong"); err == nil {
		t.Fatal("Login with a bad password should fail")
	}

	creds, err := m.Login(ctx, "admin@example.com", "pw")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if creds.Email != "admin@example.com" || creds.TimeUntilExpiry() <= 0 {
		t.Errorf("credentials = %+v", creds)
	}

	token, err := m.Token(ctx)
	if err != nil || token != "login-token" {
		t.Errorf("Token() = %q, %v", token, err)
	}
	if !m.Authenticated(ctx) {
		t.Error("Authenticated() = false after login")
	}
}

func TestManager_RefreshDeduplicated(t *testing.T) {
	auth := &fakeAuth{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	store := NewMemoryStore()
	expiredSession(t, store, "r-1")
	m := NewManager(auth, store)

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := m.Token(context.Background())
			if err != nil {
				t.Errorf("Token() error: %v", err)
			}
			tokens[i] = tok
		}(i)
	}

	<-auth.entered
	// Let the remaining callers join the in-flight refresh.
	time.Sleep(100 * time.Millisecond)
	close(auth.block)
	wg.Wait()

	if n := auth.refreshCount(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	for i, tok := range tokens {
		if tok != "refreshed-token" {
			t.Errorf("caller %d got %q", i, tok)
		}
	}

	creds, err := store.Load(context.Background())
	if err != nil || creds.AccessToken != "refreshed-token" || creds.RefreshToken != "r-1" {
		t.Errorf("stored credentials = %+v, %v", creds, err)
	}
}

func TestManager_RefreshRejectedEndsSession(t *testing.T) {
	auth := &fakeAuth{refreshErr: &client.RequestError{StatusCode: http.StatusUnauthorized, ErrorClass: client.ErrorClassAuth}}
	store := NewMemoryStore()
	expiredSession(t, store, "r-1")
	m := NewManager(auth, store)

	var got []Invalidation
	m.Subscribe(func(ev Invalidation) { got = append(got, ev) })

	token, err := m.Token(context.Background())
	if err != nil || token != "" {
		t.Errorf("Token() = %q, %v, want anonymous", token, err)
	}
	if len(got) != 1 || got[0].Reason != ReasonRefreshFailed || got[0].StatusCode != 401 {
		t.Errorf("invalidations = %+v", got)
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, ErrNoCredentials) {
		t.Error("credentials should be cleared")
	}
}

func TestManager_RefreshNetworkErrorKeepsSession(t *testing.T) {
	auth := &fakeAuth{refreshErr: &client.NetworkError{Method: "POST", Endpoint: "/auth/refresh", Err: errors.New("connection reset")}}
	store := NewMemoryStore()
	expiredSession(t, store, "r-1")
	m := NewManager(auth, store)

	fired := false
	m.Subscribe(func(Invalidation) { fired = true })

	_, err := m.Token(context.Background())
	var netErr *client.NetworkError
	if !errors.As(err, &netErr) {
		t.Errorf("Token() error = %v, want NetworkError", err)
	}
	if fired || !m.Authenticated(context.Background()) {
		t.Error("a transient refresh failure must not end the session")
	}
}

func TestManager_ExpiredWithoutRefreshToken(t *testing.T) {
	store := NewMemoryStore()
	expiredSession(t, store, "")
	m := NewManager(&fakeAuth{}, store)

	var reasons []string
	m.Subscribe(func(ev Invalidation) { reasons = append(reasons, ev.Reason) })

	token, err := m.Token(context.Background())
	if err != nil || token != "" {
		t.Errorf("Token() = %q, %v", token, err)
	}
	if len(reasons) != 1 || reasons[0] != ReasonAuthExpired {
		t.Errorf("reasons = %v", reasons)
	}
}

func TestManager_LogoutDuringRefresh(t *testing.T) {
	auth := &fakeAuth{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	store := NewMemoryStore()
	expiredSession(t, store, "r-1")
	m := NewManager(auth, store)

	done := make(chan string, 1)
	go func() {
		tok, _ := m.Token(context.Background())
		done <- tok
	}()

	<-auth.entered
	m.Logout(context.Background())
	close(auth.block)

	if tok := <-done; tok != "" {
		t.Errorf("Token() after logout = %q, want empty", tok)
	}
	if m.Authenticated(context.Background()) {
		t.Error("refresh resurrected a logged-out session")
	}
}

func TestManager_SingleInvalidationPerGeneration(t *testing.T) {
	backend := testutil.NewMockBackend(testutil.SeedProducts(3)...)
	defer backend.Close()
	backend.AddUser("admin@example.com", "pw")
	backend.RequireToken("pending")

	c, err := client.New(client.DefaultConfig(backend.URL()))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	store := NewMemoryStore()
	m := NewManager(c, store)
	unbind := m.Bind(c)
	defer unbind()

	var broadcasts atomic.Int32
	m.Subscribe(func(Invalidation) { broadcasts.Add(1) })

	ctx := context.Background()
	if _, err := m.Login(ctx, "admin@example.com", "pw"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Authenticated request succeeds with the issued token.
	if _, err := c.FetchPage(ctx, client.PageQuery{Page: 1, Limit: 5}); err != nil {
		t.Fatalf("FetchPage with session failed: %v", err)
	}

	// The backend revokes the token; several requests fail at once.
	backend.RequireToken("revoked")
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.FetchPage(ctx, client.PageQuery{Page: 1, Limit: 5})
			if err != nil && !errors.Is(err, client.ErrAuthExpired) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := broadcasts.Load(); n != 1 {
		t.Errorf("broadcasts = %d, want 1", n)
	}
	if m.Authenticated(ctx) {
		t.Error("credentials should be cleared after AuthExpired")
	}

	// A new login starts a new generation that may be invalidated again.
	if _, err := m.Login(ctx, "admin@example.com", "pw"); err != nil {
		t.Fatal(err)
	}
	backend.RequireToken("revoked-again")
	_, _ = c.FetchPage(ctx, client.PageQuery{Page: 1, Limit: 5})
	if n := broadcasts.Load(); n != 2 {
		t.Errorf("broadcasts after second session = %d, want 2", n)
	}
}

func TestManager_RefreshAgainstBackend(t *testing.T) {
	backend := testutil.NewMockBackend(testutil.SeedProducts(3)...)
	defer backend.Close()
	backend.AddUser("admin@example.com", "pw")
	backend.RequireToken("pending")
	// Every issued token is already inside the refresh skew.
	backend.SetExpiresIn(1)

	c, err := client.New(client.DefaultConfig(backend.URL()))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	m := NewManager(c, NewMemoryStore())
	defer m.Bind(c)()

	ctx := context.Background()
	if _, err := m.Login(ctx, "admin@example.com", "pw"); err != nil {
		t.Fatal(err)
	}

	// The login token is expired, so the request triggers a refresh first.
	if _, err := c.FetchPage(ctx, client.PageQuery{Page: 1, Limit: 5}); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	var refreshes int
	var lastAuth string
	for _, r := range backend.Requests() {
		if r.Path == "/auth/refresh" {
			refreshes++
		}
		if r.Path == "/products" {
			lastAuth = r.Authorization
		}
	}
	if refreshes != 1 {
		t.Errorf("refresh requests = %d, want 1", refreshes)
	}
	if lastAuth != "Bearer access-2" {
		t.Errorf("listing sent %q, want the refreshed token", lastAuth)
	}
}

func TestManager_LogoutBroadcastsOnce(t *testing.T) {
	m := NewManager(&fakeAuth{expiresIn: 3600}, NewMemoryStore())
	ctx := context.Background()
	if _, err := m.Login(ctx, "admin@example.com", "pw"); err != nil {
		t.Fatal(err)
	}

	var reasons []string
	m.Subscribe(func(ev Invalidation) { reasons = append(reasons, ev.Reason) })

	m.Logout(ctx)
	m.HandleAuthExpired(client.AuthEvent{StatusCode: 401})
	m.Logout(ctx)

	if len(reasons) != 1 || reasons[0] != ReasonLogout {
		t.Errorf("reasons = %v, want a single logout", reasons)
	}
}

func TestManager_LateRejectionKeepsNewSession(t *testing.T) {
	backend := testutil.NewMockBackend(testutil.SeedProducts(3)...)
	defer backend.Close()
	backend.AddUser("admin@example.com", "pw")
	backend.RequireToken("pending")

	c, err := client.New(client.DefaultConfig(backend.URL()))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	m := NewManager(c, NewMemoryStore())
	defer m.Bind(c)()

	var (
		mu      sync.Mutex
		reasons []string
	)
	m.Subscribe(func(ev Invalidation) {
		mu.Lock()
		reasons = append(reasons, ev.Reason)
		mu.Unlock()
	})

	ctx := context.Background()
	first, err := m.Login(ctx, "admin@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}
	m.Logout(ctx)
	second, err := m.Login(ctx, "admin@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if first.AccessToken == second.AccessToken {
		t.Fatalf("expected distinct tokens, got %q twice", first.AccessToken)
	}

	// A request sent under the first session is rejected after the new login.
	_, err = c.FetchPage(client.WithToken(ctx, first.AccessToken), client.PageQuery{Page: 1, Limit: 5})
	if !errors.Is(err, client.ErrAuthExpired) {
		t.Fatalf("error = %v, want ErrAuthExpired", err)
	}
	m.HandleAuthExpired(client.AuthEvent{StatusCode: 401, Token: first.AccessToken})
	m.HandleAuthExpired(client.AuthEvent{StatusCode: 401})

	creds, err := m.Credentials(ctx)
	if err != nil || creds.AccessToken != second.AccessToken {
		t.Errorf("credentials = %+v, %v, want the second session kept", creds, err)
	}

	mu.Lock()
	if !reflect.DeepEqual(reasons, []string{ReasonLogout}) {
		t.Errorf("reasons = %v, want only the logout", reasons)
	}
	mu.Unlock()

	// Rejecting the current token still ends the session.
	backend.RequireToken("revoked")
	if _, err := c.FetchPage(ctx, client.PageQuery{Page: 1, Limit: 5}); !errors.Is(err, client.ErrAuthExpired) {
		t.Fatalf("error = %v, want ErrAuthExpired", err)
	}
	if m.Authenticated(ctx) {
		t.Error("session should end when its current token is rejected")
	}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(reasons, []string{ReasonLogout, ReasonAuthExpired}) {
		t.Errorf("reasons = %v", reasons)
	}
}
