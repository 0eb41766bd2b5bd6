package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/Sternrassler/storefront-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Prometheus metrics for session handling.
var (
	refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_session_refreshes_total",
		Help: "Total access token refreshes by result",
	}, []string{"result"})

	invalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_session_invalidations_total",
		Help: "Total session invalidations broadcast by reason",
	}, []string{"reason"})
)

// Invalidation reasons.
const (
	ReasonAuthExpired   = "auth_expired"
	ReasonRefreshFailed = "refresh_failed"
	ReasonLogout        = "logout"
)

// Invalidation is broadcast once when a session ends.
type Invalidation struct {
	Generation uint64
	Reason     string
	StatusCode int // of the rejected request, 0 when not caused by one
}

// Authenticator is the part of the resource client used for tokens.
// *client.Client implements it.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (client.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (client.TokenResponse, error)
}

// Manager supplies bearer tokens and centralizes logout.
//
// Every login starts a new session generation. However many requests fail
// with 401/403 during one generation, listeners are notified once.
type Manager struct {
	auth   Authenticator
	store  Store
	logger zerolog.Logger
	group  singleflight.Group

	mu          sync.Mutex
	generation  uint64
	invalidated uint64
	listeners   map[uint64]func(Invalidation)
	nextID      uint64
}

// NewManager creates a manager over store. Credentials already in the store
// belong to the first generation.
func NewManager(auth Authenticator, store Store) *Manager {
	return &Manager{
		auth:       auth,
		store:      store,
		logger:     logging.NewLogger("session"),
		generation: 1,
		listeners:  make(map[uint64]func(Invalidation)),
	}
}

// Bind installs the manager as c's credential provider and routes c's
// AuthExpired events to HandleAuthExpired. The returned function unbinds
// the event route.
func (m *Manager) Bind(c *client.Client) (cancel func()) {
	c.SetCredentials(m)
	return c.OnAuthExpired(m.HandleAuthExpired)
}

// Token implements client.CredentialProvider.
//
// It returns "" without error when there is no session, so the request is
// sent anonymously. Expired tokens are refreshed first; concurrent callers
// share one refresh. A refresh rejected by the backend ends the session.
func (m *Manager) Token(ctx context.Context) (string, error) {
	creds, err := m.store.Load(ctx)
	if errors.Is(err, ErrNoCredentials) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !creds.IsExpired() {
		return creds.AccessToken, nil
	}

	if creds.RefreshToken == "" {
		m.invalidate(ctx, ReasonAuthExpired, 0, creds.AccessToken)
		return "", nil
	}

	v, err, shared := m.group.Do("refresh", func() (any, error) {
		return m.refresh(ctx, creds)
	})
	if err != nil {
		var reqErr *client.RequestError
		if errors.As(err, &reqErr) {
			m.invalidate(ctx, ReasonRefreshFailed, reqErr.StatusCode, creds.AccessToken)
			return "", nil
		}
		return "", fmt.Errorf("refresh access token: %w", err)
	}

	if shared {
		m.logger.Debug().Msg("Joined in-flight token refresh")
	}
	return v.(string), nil
}

// refresh exchanges the refresh token and persists the result unless the
// session changed meanwhile.
func (m *Manager) refresh(ctx context.Context, creds Credentials) (string, error) {
	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()

	resp, err := m.auth.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		refreshesTotal.WithLabelValues("failed").Inc()
		m.logger.Warn().Err(err).Msg("Token refresh failed")
		return "", err
	}
	refreshesTotal.WithLabelValues("success").Inc()

	next := fromTokens(resp, creds, time.Now())

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen || m.invalidated == gen {
		// Logged out or replaced by a new login during the refresh.
		return "", nil
	}
	if err := m.store.Save(ctx, next); err != nil {
		return "", fmt.Errorf("save refreshed credentials: %w", err)
	}

	m.logger.Debug().
		Dur("expires_in", next.TimeUntilExpiry()).
		Msg("Access token refreshed")
	return next.AccessToken, nil
}

// HandleAuthExpired clears the stored credentials and notifies listeners,
// once per session generation. Rejections of a token that is no longer the
// stored one are ignored: they belong to a session that was already ended,
// refreshed or replaced by a new login. Anonymous rejections are ignored too.
func (m *Manager) HandleAuthExpired(ev client.AuthEvent) {
	if ev.Token == "" {
		return
	}
	m.invalidate(context.Background(), ReasonAuthExpired, ev.StatusCode, ev.Token)
}

// invalidate ends the current generation. When token is set the session is
// only ended if token is still the stored access token. It reports whether
// this call performed the broadcast.
func (m *Manager) invalidate(ctx context.Context, reason string, status int, token string) bool {
	m.mu.Lock()
	if m.invalidated == m.generation {
		m.mu.Unlock()
		return false
	}
	if token != "" {
		current, err := m.store.Load(ctx)
		if errors.Is(err, ErrNoCredentials) || (err == nil && current.AccessToken != token) {
			m.mu.Unlock()
			m.logger.Debug().
				Str("reason", reason).
				Int("status_code", status).
				Msg("Ignoring rejection of a superseded token")
			return false
		}
	}
	m.invalidated = m.generation
	ev := Invalidation{Generation: m.generation, Reason: reason, StatusCode: status}

	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error().Err(err).Msg("Failed to clear stored credentials")
	}

	listeners := make([]func(Invalidation), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	invalidationsTotal.WithLabelValues(reason).Inc()
	m.logger.Info().
		Uint64("generation", ev.Generation).
		Str("reason", reason).
		Int("status_code", status).
		Msg("Session invalidated")

	for _, fn := range listeners {
		fn(ev)
	}
	return true
}

// Subscribe registers fn for session invalidations.
func (m *Manager) Subscribe(fn func(Invalidation)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Login authenticates and starts a new session generation.
func (m *Manager) Login(ctx context.Context, email, password string) (Credentials, error) {
	resp, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return Credentials{}, err
	}

	creds := fromTokens(resp, Credentials{Email: email}, time.Now())

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(ctx, creds); err != nil {
		return Credentials{}, fmt.Errorf("save credentials: %w", err)
	}
	m.generation++

	m.logger.Info().
		Str("email", creds.Email).
		Uint64("generation", m.generation).
		Msg("Logged in")
	return creds, nil
}

// Logout ends the session. Listeners are notified unless the session
// already ended.
func (m *Manager) Logout(ctx context.Context) {
	m.invalidate(ctx, ReasonLogout, 0, "")
}

// Authenticated reports whether credentials are stored.
func (m *Manager) Authenticated(ctx context.Context) bool {
	creds, err := m.store.Load(ctx)
	return err == nil && creds.AccessToken != ""
}

// Credentials returns the stored credentials.
func (m *Manager) Credentials(ctx context.Context) (Credentials, error) {
	return m.store.Load(ctx)
}
