package cache

import (
	"context"
	"sync"
	"time"
)

const backendMemory = "memory"

// MemoryBackend keeps payloads in a process-local map with absolute expiry.
// Expired entries are removed on access and by Sweep, which the owner must
// call periodically when keys are not read again. Safe for concurrent use.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string]Entry
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string]Entry),
	}
}

// GetString returns the value for key if present and not expired.
func (b *MemoryBackend) GetString(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.data[key]
	if !ok {
		CacheMisses.WithLabelValues(backendMemory).Inc()
		return "", false, nil
	}
	if entry.IsExpired() {
		delete(b.data, key)
		CacheMisses.WithLabelValues(backendMemory).Inc()
		return "", false, nil
	}

	CacheHits.WithLabelValues(backendMemory).Inc()
	return entry.Value, true, nil
}

// SetString stores value under key until ttl elapses.
func (b *MemoryBackend) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = Entry{
		Value:   value,
		Expires: time.Now().Add(ttl),
	}
	return nil
}

// RemoveString deletes key.
func (b *MemoryBackend) RemoveString(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

// Ping always succeeds.
func (b *MemoryBackend) Ping(ctx context.Context) error {
	return ctx.Err()
}

// TTL returns the remaining lifetime of key, or false if it is absent.
func (b *MemoryBackend) TTL(key string) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.data[key]
	if !ok || entry.IsExpired() {
		return 0, false
	}
	return entry.TTL(), true
}

// Sweep removes all expired entries and returns how many were removed.
func (b *MemoryBackend) Sweep(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return b.sweepAt(time.Now()), nil
}

func (b *MemoryBackend) sweepAt(now time.Time) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	var removed int64
	for key, entry := range b.data {
		if entry.expiredAt(now) {
			delete(b.data, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not yet
// removed.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}
