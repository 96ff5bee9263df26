package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const backendRedis = "redis"

// RedisBackend stores payloads in Redis with native key expiry.
type RedisBackend struct {
	redis *redis.Client
}

// NewRedisBackend creates a new cache backend on top of a Redis client.
func NewRedisBackend(redisClient *redis.Client) *RedisBackend {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisBackend{
		redis: redisClient,
	}
}

// GetString retrieves the value stored under key.
func (b *RedisBackend) GetString(ctx context.Context, key string) (string, bool, error) {
	value, err := b.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(backendRedis).Inc()
			return "", false, nil
		}
		CacheErrors.WithLabelValues(backendRedis, "get").Inc()
		return "", false, fmt.Errorf("redis get: %w", err)
	}

	CacheHits.WithLabelValues(backendRedis).Inc()
	return value, true, nil
}

// SetString stores value under key. Redis removes it once ttl elapses.
func (b *RedisBackend) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	if err := b.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// RemoveString deletes key.
func (b *RedisBackend) RemoveString(ctx context.Context, key string) error {
	if err := b.redis.Del(ctx, key).Err(); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "remove").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.redis.Ping(ctx).Err()
}

// TTL returns the remaining lifetime of key as reported by Redis.
func (b *RedisBackend) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := b.redis.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}
	return ttl, nil
}
