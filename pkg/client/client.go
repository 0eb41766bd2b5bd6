// Package client provides the storefront resource client: paginated product
// listing, product CRUD and the login/refresh endpoints of the backend REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for backend requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_requests_total",
		Help: "Total backend requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_request_duration_seconds",
		Help:    "Backend request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_errors_total",
		Help: "Total backend errors by class",
	}, []string{"class"})

	authExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_auth_expired_total",
		Help: "Total 401/403 responses that signalled expired credentials",
	})
)

// Endpoint labels. Product ids are folded into a template to bound cardinality.
const (
	endpointProducts = "/products"
	endpointProduct  = "/products/{id}"
	endpointLogin    = "/auth/login"
	endpointRefresh  = "/auth/refresh"
)

// CredentialProvider supplies the bearer token attached to product requests.
// An empty token means the request is sent anonymously.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// CredentialFunc adapts a function to CredentialProvider.
type CredentialFunc func(ctx context.Context) (string, error)

// Token implements CredentialProvider.
func (f CredentialFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// AuthEvent describes a request whose credentials were rejected.
type AuthEvent struct {
	StatusCode int
	Method     string
	Endpoint   string

	// Token is the bearer token the rejected request carried, "" when it
	// was sent anonymously. Observers use it to ignore rejections of a
	// session that has already been replaced.
	Token string
}

type tokenKey struct{}

// WithToken returns a context whose requests carry token instead of the
// token of the client's credential provider. It is used to act on behalf
// of an inbound caller.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok && token != ""
}

// Client is the backend resource client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger

	mu        sync.RWMutex
	observers map[uint64]func(AuthEvent)
	nextID    uint64
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the backend REST API (REQUIRED), e.g. "https://api.example.com/api"
	BaseURL string

	// UserAgent header sent with every request
	UserAgent string

	// Timeout per request
	Timeout time.Duration

	// Credentials for product requests (optional)
	Credentials CredentialProvider
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "storefront-client/0.1.0",
		Timeout:   15 * time.Second,
	}
}

// New creates a new resource client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}
	if base.Path == "" {
		base.Path = "/"
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:   base,
		config:    cfg,
		logger:    log.With().Str("component", "resource-client").Logger(),
		observers: make(map[uint64]func(AuthEvent)),
	}, nil
}

// OnAuthExpired registers fn to be called whenever a product request is
// rejected with 401/403. The returned function removes the registration.
// Observers run on the requesting goroutine and must not block.
func (c *Client) OnAuthExpired(fn func(AuthEvent)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func (c *Client) notifyAuthExpired(ev AuthEvent) {
	authExpiredTotal.Inc()

	c.mu.RLock()
	observers := make([]func(AuthEvent), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.RUnlock()

	for _, fn := range observers {
		fn(ev)
	}
}

// request describes one backend call.
type request struct {
	method   string
	path     string
	endpoint string // metrics label
	query    url.Values
	body     any
	out      any

	// authenticated requests carry credentials and raise AuthExpired on 401/403.
	authenticated bool
}

// do performs a single attempt; there is no retry.
func (c *Client) do(ctx context.Context, r request) error {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(r.endpoint).Observe(time.Since(startTime).Seconds())
	}()

	target := c.baseURL.JoinPath(r.path)
	if len(r.query) > 0 {
		target.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("X-Request-ID", requestID)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.token(ctx, r)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug().
		Str("method", r.method).
		Str("endpoint", r.endpoint).
		Str("request_id", requestID).
		Msg("Executing backend request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(r.endpoint, "network_error").Inc()
		c.logger.Error().Err(err).
			Str("endpoint", r.endpoint).
			Str("request_id", requestID).
			Msg("Backend request failed")
		return &NetworkError{Method: r.method, Endpoint: r.endpoint, Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(r.endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()

		reqErr := &RequestError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Method:     r.method,
			Endpoint:   r.endpoint,
			Message:    readErrorMessage(resp),
		}

		c.logger.Warn().
			Str("endpoint", r.endpoint).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Str("request_id", requestID).
			Msg("Backend request error")

		if r.authenticated && isAuthStatus(resp.StatusCode) {
			c.notifyAuthExpired(AuthEvent{
				StatusCode: resp.StatusCode,
				Method:     r.method,
				Endpoint:   r.endpoint,
				Token:      token,
			})
		}
		return reqErr
	}

	if r.out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(r.out); err != nil {
		return fmt.Errorf("decode %s response: %w", r.endpoint, err)
	}
	return nil
}

// readErrorMessage extracts a human readable message from an error body.
// Backends answer either {"message": "..."} or {"message": ["...", "..."]}.
func readErrorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(data) == 0 {
		return http.StatusText(resp.StatusCode)
	}

	var envelope struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return strings.TrimSpace(string(data))
	}

	var single string
	if err := json.Unmarshal(envelope.Message, &single); err == nil && single != "" {
		return single
	}
	var many []string
	if err := json.Unmarshal(envelope.Message, &many); err == nil && len(many) > 0 {
		return strings.Join(many, "; ")
	}
	if envelope.Error != "" {
		return envelope.Error
	}
	return http.StatusText(resp.StatusCode)
}

// SetCredentials replaces the credential provider used for product requests.
func (c *Client) SetCredentials(p CredentialProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.Credentials = p
}

func (c *Client) credentials() CredentialProvider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.Credentials
}

// token picks the bearer for r: a WithToken override first, then the
// credential provider.
func (c *Client) token(ctx context.Context, r request) (string, error) {
	if !r.authenticated {
		return "", nil
	}
	if override, ok := tokenFromContext(ctx); ok {
		return override, nil
	}
	creds := c.credentials()
	if creds == nil {
		return "", nil
	}
	token, err := creds.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("load credentials: %w", err)
	}
	return token, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
