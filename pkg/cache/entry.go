package cache

import (
	"time"
)

// Entry is a value held by MemoryBackend.
type Entry struct {
	// Value is the serialized payload
	Value string

	// Expires is the absolute expiration set at write time
	Expires time.Time
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return e.expiredAt(time.Now())
}

// expiredAt reports whether the entry is expired at now. An entry is
// expired from its deadline on.
func (e *Entry) expiredAt(now time.Time) bool {
	return !now.Before(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
