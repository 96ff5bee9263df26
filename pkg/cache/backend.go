package cache

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidTTL is returned by SetString when ttl is not positive.
var ErrInvalidTTL = errors.New("cache ttl must be positive")

// Backend is a shared key/value store holding serialized payloads.
//
// GetString reports a missing or expired key as ok=false with a nil error;
// a non-nil error means the backend itself failed. SetString replaces the
// whole value. RemoveString on a missing key is not an error.
type Backend interface {
	GetString(ctx context.Context, key string) (value string, ok bool, err error)
	SetString(ctx context.Context, key, value string, ttl time.Duration) error
	RemoveString(ctx context.Context, key string) error
}

// Pinger is implemented by backends that can check their connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
