package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/storefront-client/pkg/domain"
	"github.com/redis/go-redis/v9"
)

const (
	layerRedis = "redis"

	// scanBatch is the COUNT hint used while clearing.
	scanBatch = 200
)

// Redis stores pages in Redis without expiry.
type Redis struct {
	redis *redis.Client
}

// NewRedis creates a Redis-backed store.
func NewRedis(redisClient *redis.Client) *Redis {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Redis{
		redis: redisClient,
	}
}

// Get retrieves a page by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (r *Redis) Get(ctx context.Context, key Key) (domain.PageResult, error) {
	data, err := r.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues(layerRedis).Inc()
			return domain.PageResult{}, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return domain.PageResult{}, fmt.Errorf("redis get: %w", err)
	}

	var result domain.PageResult
	if err := json.Unmarshal(data, &result); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return domain.PageResult{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues(layerRedis).Inc()
	return result, nil
}

// Put stores a page with no TTL.
func (r *Redis) Put(ctx context.Context, key Key, result domain.PageResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal page: %w", err)
	}

	if err := r.redis.Set(ctx, key.String(), data, 0).Err(); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CachePuts.WithLabelValues(layerRedis).Inc()
	return nil
}

// Clear deletes every key under KeyPrefix.
func (r *Redis) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.redis.Scan(ctx, cursor, KeyPrefix+":*", scanBatch).Result()
		if err != nil {
			CacheErrors.WithLabelValues("clear").Inc()
			return fmt.Errorf("redis scan: %w", err)
		}

		if len(keys) > 0 {
			if err := r.redis.Del(ctx, keys...).Err(); err != nil {
				CacheErrors.WithLabelValues("clear").Inc()
				return fmt.Errorf("redis del: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	CacheClears.WithLabelValues(layerRedis).Inc()
	return nil
}
