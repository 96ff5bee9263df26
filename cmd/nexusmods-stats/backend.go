package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/nexusmods-stats/pkg/cache"
)

// openBackend connects the configured cache backend. The returned close
// function releases its connections.
func openBackend(ctx context.Context, cfg Config, logger zerolog.Logger) (cache.Backend, func(), error) {
	switch cfg.CacheBackend {
	case backendRedis:
		opts, err := redisOptions(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
		return cache.NewRedisBackend(redisClient), func() { redisClient.Close() }, nil

	case backendMemcached:
		backend := cache.NewMemcachedBackend(cfg.MemcachedAddrs, cfg.MemcachedTimeout, 0)
		if err := backend.Ping(ctx); err != nil {
			backend.Close()
			return nil, nil, fmt.Errorf("connect to memcached at %s: %w", cfg.MemcachedAddrs, err)
		}
		logger.Info().Str("addrs", cfg.MemcachedAddrs).Msg("Connected to memcached")
		return backend, func() { backend.Close() }, nil

	case backendPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("create postgres pool: %w", err)
		}
		backend := cache.NewPostgresBackend(pool, cfg.PostgresSchema, cfg.PostgresTable)
		if err := backend.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info().
			Str("schema", cfg.PostgresSchema).
			Str("table", cfg.PostgresTable).
			Msg("Connected to PostgreSQL cache")
		return backend, pool.Close, nil

	case backendMemory:
		logger.Warn().Msg("Using in-memory cache; entries are not shared between instances")
		return cache.NewMemoryBackend(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// redisOptions accepts either a redis:// URL or a bare host:port.
func redisOptions(raw string) (*redis.Options, error) {
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: raw}, nil
}

// sweeper is implemented by backends whose expired entries must be purged.
type sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// runSweeper purges expired entries every interval until ctx is done.
func runSweeper(ctx context.Context, s sweeper, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Sweep(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("Cache sweep failed")
				continue
			}
			logger.Debug().Int64("removed", removed).Msg("Cache sweep completed")
		}
	}
}
