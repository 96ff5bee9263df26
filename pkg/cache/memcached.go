package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const (
	backendMemcached = "memcached"

	// maxMemcachedKeyLen is the memcached protocol limit.
	maxMemcachedKeyLen = 250

	// maxRelativeExpiration is the largest expiration memcached treats as
	// relative; larger values are read as unix timestamps.
	maxRelativeExpiration = 30 * 24 * time.Hour
)

// MemcachedBackend stores payloads in memcached.
type MemcachedBackend struct {
	client *memcache.Client
}

// NewMemcachedBackend creates a MemcachedBackend. addrs is a comma-separated
// list (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns use the gomemcache defaults if zero.
func NewMemcachedBackend(addrs string, timeout time.Duration, maxIdleConns int) *MemcachedBackend {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedBackend{client: client}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// memcachedKey maps key onto the memcached key alphabet. Keys that are too
// long or contain spaces or control characters are replaced by their
// SHA-256 hex digest.
func memcachedKey(key string) string {
	if len(key) <= maxMemcachedKeyLen && validMemcachedKey(key) {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return keyPrefix + ":sha256:" + hex.EncodeToString(sum[:])
}

func validMemcachedKey(key string) bool {
	for i := 0; i < len(key); i++ {
		if key[i] <= ' ' || key[i] == 0x7f {
			return false
		}
	}
	return true
}

// expirationSeconds converts ttl to whole seconds, at least one.
func expirationSeconds(ttl time.Duration) int32 {
	if ttl > maxRelativeExpiration {
		ttl = maxRelativeExpiration
	}
	sec := int32(ttl / time.Second)
	if sec < 1 {
		sec = 1
	}
	return sec
}

// GetString retrieves the value stored under key.
func (b *MemcachedBackend) GetString(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	item, err := b.client.Get(memcachedKey(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			CacheMisses.WithLabelValues(backendMemcached).Inc()
			return "", false, nil
		}
		CacheErrors.WithLabelValues(backendMemcached, "get").Inc()
		return "", false, fmt.Errorf("memcached get: %w", err)
	}

	CacheHits.WithLabelValues(backendMemcached).Inc()
	return string(item.Value), true, nil
}

// SetString stores value under key until ttl elapses.
func (b *MemcachedBackend) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	err := b.client.Set(&memcache.Item{
		Key:        memcachedKey(key),
		Value:      []byte(value),
		Expiration: expirationSeconds(ttl),
	})
	if err != nil {
		CacheErrors.WithLabelValues(backendMemcached, "set").Inc()
		return fmt.Errorf("memcached set: %w", err)
	}
	return nil
}

// RemoveString deletes key.
func (b *MemcachedBackend) RemoveString(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := b.client.Delete(memcachedKey(key))
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		CacheErrors.WithLabelValues(backendMemcached, "remove").Inc()
		return fmt.Errorf("memcached delete: %w", err)
	}
	return nil
}

// Ping checks that every memcached server is reachable.
func (b *MemcachedBackend) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.client.Ping()
}

// Close closes idle memcached connections.
func (b *MemcachedBackend) Close() error {
	return b.client.Close()
}
