// Package cache provides cache key derivation and the shared key/value
// backends used by the fetch coordinator.
//
// The coordinator only needs three string operations, captured by the
// Backend interface:
//
//   - GetString: read a value, reporting a miss as ok=false with a nil error
//   - SetString: replace the full value with an absolute TTL
//   - RemoveString: delete a value (missing keys are not an error)
//
// Eviction is purely TTL based and delegated to the backend.
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create backend
//	backend := cache.NewRedisBackend(redisClient)
//
//	// Derive a key from the resource path and the credential
//	key := cache.NewKey("/v1/games/skyrim/mods/1.json", apiKey)
//
//	value, ok, err := backend.GetString(ctx, key.String())
//
// # Keys
//
// Keys embed a SHA-512 fingerprint of the credential, never the credential
// itself, so they are safe to log. Two tenants requesting the same path get
// different keys.
//
// # Backends
//
//   - RedisBackend    - go-redis, shared across instances
//   - MemcachedBackend - gomemcache, shared across instances
//   - PostgresBackend - pgx pool, one row per key with an expires_at column
//   - MemoryBackend   - process local, for single instances and tests
//
// # Metrics
//
//   - nexusmods_cache_hits_total{backend}
//   - nexusmods_cache_misses_total{backend}
//   - nexusmods_cache_errors_total{backend,operation}
package cache
