package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoCredentials is returned by Store.Load when nothing is persisted.
var ErrNoCredentials = errors.New("no stored credentials")

// Store persists credentials between requests.
type Store interface {
	Load(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, creds Credentials) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps credentials in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	creds *Credentials
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context) (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return Credentials{}, ErrNoCredentials
	}
	return *s.creds, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = &creds
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	return nil
}

// Redis key fields for a stored session.
const (
	redisFieldAccessToken  = "access_token"
	redisFieldRefreshToken = "refresh_token"
	redisFieldExpiresAt    = "expires_at"
	redisFieldEmail        = "email"
)

// RedisStore keeps credentials in Redis so that several storefront
// processes share one session.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a store for the named session.
// Keys are "storefront:session:<name>:<field>".
func NewRedisStore(redisClient *redis.Client, name string) *RedisStore {
	if redisClient == nil {
		panic("session: redis client must not be nil")
	}
	if name == "" {
		name = "default"
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: "storefront:session:" + name + ":",
	}
}

func (s *RedisStore) key(field string) string {
	return s.prefix + field
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context) (Credentials, error) {
	pipe := s.redis.Pipeline()
	access := pipe.Get(ctx, s.key(redisFieldAccessToken))
	refresh := pipe.Get(ctx, s.key(redisFieldRefreshToken))
	expires := pipe.Get(ctx, s.key(redisFieldExpiresAt))
	email := pipe.Get(ctx, s.key(redisFieldEmail))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Credentials{}, fmt.Errorf("load session from redis: %w", err)
	}

	accessToken, err := access.Result()
	if err == redis.Nil {
		return Credentials{}, ErrNoCredentials
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("get access token: %w", err)
	}

	creds := Credentials{
		AccessToken:  accessToken,
		RefreshToken: refresh.Val(),
		Email:        email.Val(),
	}
	if unix, err := expires.Int64(); err == nil && unix > 0 {
		creds.ExpiresAt = time.Unix(unix, 0)
	}
	return creds, nil
}

// Save implements Store. All fields are written in one pipeline.
func (s *RedisStore) Save(ctx context.Context, creds Credentials) error {
	var expiresAt int64
	if !creds.ExpiresAt.IsZero() {
		expiresAt = creds.ExpiresAt.Unix()
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.key(redisFieldAccessToken), creds.AccessToken, 0)
	pipe.Set(ctx, s.key(redisFieldRefreshToken), creds.RefreshToken, 0)
	pipe.Set(ctx, s.key(redisFieldExpiresAt), expiresAt, 0)
	pipe.Set(ctx, s.key(redisFieldEmail), creds.Email, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store session in redis: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context) error {
	err := s.redis.Del(ctx,
		s.key(redisFieldAccessToken),
		s.key(redisFieldRefreshToken),
		s.key(redisFieldExpiresAt),
		s.key(redisFieldEmail),
	).Err()
	if err != nil {
		return fmt.Errorf("clear session in redis: %w", err)
	}
	return nil
}
