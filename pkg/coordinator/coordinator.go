// Package coordinator implements the cache-coordinated fetch path.
//
// GetOrFetch reads through the cache backend and keeps at most one upstream
// request in flight per cache key:
//
//  1. read the cache; a hit is returned without contacting upstream
//  2. acquire the per-key lock
//  3. re-read the cache; a value written while waiting is returned
//  4. fetch from upstream and store the result
//
// Upstream failures never reach the caller. If the fetch fails and a
// previous payload is known (stale shadow entry or in-process memo), it is
// written back with a fresh TTL and returned. Otherwise the result is
// absent.
package coordinator

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/nexusmods-stats/pkg/cache"
	"github.com/Sternrassler/nexusmods-stats/pkg/client"
	"github.com/Sternrassler/nexusmods-stats/pkg/lock"
)

// Defaults applied by New.
const (
	DefaultTTL              = 5 * time.Minute
	DefaultStaleTTL         = 24 * time.Hour
	DefaultCredentialHeader = "apikey"
	DefaultAccept           = "application/json"
)

// Decoder turns cached or fetched text into a typed value.
type Decoder[T any] func(text string) (T, error)

// Config holds the coordinator configuration.
type Config struct {
	// Backend stores payload text (REQUIRED)
	Backend cache.Backend

	// Fetcher performs upstream requests (REQUIRED)
	Fetcher client.Fetcher

	// Locker serializes fetches per key (default: lock.NewRegistry("coordinator"))
	Locker lock.Locker

	// TTL of the primary entry (default: 5m)
	TTL time.Duration

	// StaleTTL of the shadow entry used for stale fallback (default: 24h).
	// It should exceed TTL so the last good payload outlives the primary.
	StaleTTL time.Duration

	// CredentialHeader carries the credential upstream (default: "apikey")
	CredentialHeader string

	// Accept header sent upstream (default: "application/json")
	Accept string

	// Logger (default: component logger "coordinator")
	Logger *zerolog.Logger
}

// Coordinator holds the collaborators shared by all GetOrFetch calls.
type Coordinator struct {
	backend          cache.Backend
	fetcher          client.Fetcher
	locker           lock.Locker
	ttl              time.Duration
	staleTTL         time.Duration
	credentialHeader string
	accept           string
	logger           zerolog.Logger

	// memo maps cache keys to the last decoded payload. An entry expires
	// with the stale shadow written alongside it and Sweep drops expired
	// entries, so it holds at most the keys requested within StaleTTL.
	memo sync.Map
}

type memoEntry struct {
	text    string
	value   any
	expires time.Time
}

// New creates a coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Backend == nil {
		return nil, errors.New("cache backend is required")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}

	if cfg.Locker == nil {
		cfg.Locker = lock.NewRegistry("coordinator")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.StaleTTL <= 0 {
		cfg.StaleTTL = DefaultStaleTTL
	}
	if cfg.CredentialHeader == "" {
		cfg.CredentialHeader = DefaultCredentialHeader
	}
	if cfg.Accept == "" {
		cfg.Accept = DefaultAccept
	}

	logger := log.With().Str("component", "coordinator").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Coordinator{
		backend:          cfg.Backend,
		fetcher:          cfg.Fetcher,
		locker:           cfg.Locker,
		ttl:              cfg.TTL,
		staleTTL:         cfg.StaleTTL,
		credentialHeader: cfg.CredentialHeader,
		accept:           cfg.Accept,
		logger:           logger,
	}, nil
}

// GetOrFetch returns the value for path as seen with credential. The second
// result is false when no value is available; errors are logged, never
// returned.
//
// Decoded values are memoized and handed to every caller of the same key,
// so callers must treat them as read-only. Decoders returning pointers
// share one instance.
func GetOrFetch[T any](ctx context.Context, c *Coordinator, path, credential string, decode Decoder[T]) (T, bool) {
	var zero T

	if path == "" || credential == "" {
		c.fail(client.ErrorClassConfig)
		c.logger.Error().
			Str("path", path).
			Str("error_class", string(client.ErrorClassConfig)).
			Msg("GetOrFetch called without path or credential")
		return zero, false
	}

	key := cache.NewKey(path, credential)
	k := key.String()
	logger := c.logger.With().Str("key", k).Str("path", path).Logger()

	// Fast path, without the lock.
	cachedText, cached := c.read(ctx, logger, k)
	if cached {
		value, ok := decodeCached(ctx, c, logger, k, cachedText, decode)
		if ok {
			coordinatorRequests.WithLabelValues(outcomeHit).Inc()
		}
		return value, ok
	}

	handle, err := c.locker.Acquire(ctx, k)
	if err != nil {
		c.fail(client.Classify(err))
		logger.Debug().Err(err).Msg("Lock wait aborted")
		coordinatorRequests.WithLabelValues(outcomeAbsent).Inc()
		return zero, false
	}
	defer handle.Release()

	// Another holder may have refreshed the entry while we waited.
	// The fast path missed, so any value present now is new.
	if freshText, fresh := c.read(ctx, logger, k); fresh {
		value, ok := decodeCached(ctx, c, logger, k, freshText, decode)
		if ok {
			coordinatorRequests.WithLabelValues(outcomeShared).Inc()
		}
		return value, ok
	}

	body, err := c.fetch(ctx, path, credential)
	if err != nil {
		return fallback(ctx, c, logger, key, decode, err)
	}

	if value, ok := memoized[T](c, k, body); ok {
		c.store(ctx, logger, key, body)
		c.remember(k, body, value)
		coordinatorRequests.WithLabelValues(outcomeUnchanged).Inc()
		return value, true
	}

	value, err := decode(body)
	if err != nil {
		return fallback(ctx, c, logger, key, decode, client.DecodeError(path, err))
	}

	c.store(ctx, logger, key, body)
	c.remember(k, body, value)
	coordinatorRequests.WithLabelValues(outcomeFetched).Inc()
	return value, true
}

// decodeCached decodes text read from the primary entry. Undecodable
// entries are treated as corrupt and removed.
func decodeCached[T any](ctx context.Context, c *Coordinator, logger zerolog.Logger, k, text string, decode Decoder[T]) (T, bool) {
	if value, ok := memoized[T](c, k, text); ok {
		return value, true
	}

	value, err := decode(text)
	if err != nil {
		c.fail(client.ErrorClassDecode)
		logger.Warn().
			Err(err).
			Str("error_class", string(client.ErrorClassDecode)).
			Msg("Removing undecodable cache entry")
		if rmErr := c.backend.RemoveString(ctx, k); rmErr != nil {
			c.fail(client.ErrorClassCache)
			logger.Warn().Err(rmErr).Msg("Failed to remove cache entry")
		}
		c.memo.Delete(k)
		coordinatorRequests.WithLabelValues(outcomeAbsent).Inc()
		var zero T
		return zero, false
	}

	c.remember(k, text, value)
	return value, true
}

// fallback serves the previous payload after a failed refresh.
func fallback[T any](ctx context.Context, c *Coordinator, logger zerolog.Logger, key cache.CacheKey, decode Decoder[T], cause error) (T, bool) {
	var zero T
	k := key.String()
	class := client.Classify(cause)
	c.fail(class)

	text, ok := c.read(ctx, logger, key.Stale())
	if !ok {
		if entry, found := c.recall(k); found {
			text, ok = entry.text, true
		}
	}
	if !ok {
		logger.Warn().
			Err(cause).
			Str("error_class", string(class)).
			Msg("Upstream unavailable and no previous value")
		coordinatorRequests.WithLabelValues(outcomeAbsent).Inc()
		return zero, false
	}

	value, ok := memoized[T](c, k, text)
	if !ok {
		decoded, err := decode(text)
		if err != nil {
			c.fail(client.ErrorClassDecode)
			logger.Warn().Err(err).Msg("Previous value is undecodable")
			coordinatorRequests.WithLabelValues(outcomeAbsent).Inc()
			return zero, false
		}
		value = decoded
	}

	c.store(ctx, logger, key, text)
	c.remember(k, text, value)
	logger.Warn().
		Err(cause).
		Str("error_class", string(class)).
		Msg("Serving stale value")
	coordinatorRequests.WithLabelValues(outcomeStale).Inc()
	return value, true
}

// fetch performs the upstream call and returns the body of a 2xx response.
func (c *Coordinator) fetch(ctx context.Context, path, credential string) (string, error) {
	header := http.Header{}
	header.Set("Accept", c.accept)
	header.Set(c.credentialHeader, credential)

	resp, err := c.fetcher.Get(ctx, path, header)
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		resp.Close()
		return "", client.StatusError(path, resp.StatusCode)
	}

	body, err := resp.Text()
	if err != nil {
		return "", &client.UpstreamError{Path: path, StatusCode: resp.StatusCode, ErrorClass: client.ErrorClassTransport, Err: err}
	}
	return body, nil
}

// read returns the cached text for k. Backend failures count as misses.
func (c *Coordinator) read(ctx context.Context, logger zerolog.Logger, k string) (string, bool) {
	text, ok, err := c.backend.GetString(ctx, k)
	if err != nil {
		c.fail(client.ErrorClassCache)
		logger.Warn().
			Err(err).
			Str("error_class", string(client.ErrorClassCache)).
			Msg("Cache read failed, treating as miss")
		return "", false
	}
	return text, ok
}

// store writes text to the primary entry and the stale shadow entry.
func (c *Coordinator) store(ctx context.Context, logger zerolog.Logger, key cache.CacheKey, text string) {
	if err := c.backend.SetString(ctx, key.String(), text, c.ttl); err != nil {
		c.fail(client.ErrorClassCache)
		logger.Warn().Err(err).Str("error_class", string(client.ErrorClassCache)).Msg("Cache write failed")
	}
	if err := c.backend.SetString(ctx, key.Stale(), text, c.staleTTL); err != nil {
		c.fail(client.ErrorClassCache)
		logger.Warn().Err(err).Str("error_class", string(client.ErrorClassCache)).Msg("Stale cache write failed")
	}
}

// memoized returns the value last decoded for k if it was decoded from text.
func memoized[T any](c *Coordinator, k, text string) (T, bool) {
	var zero T
	m, ok := c.recall(k)
	if !ok {
		return zero, false
	}
	if m.text != text {
		return zero, false
	}
	value, ok := m.value.(T)
	return value, ok
}

// remember memoizes value decoded from text for as long as the stale
// shadow entry lives.
func (c *Coordinator) remember(k, text string, value any) {
	c.memo.Store(k, &memoEntry{text: text, value: value, expires: time.Now().Add(c.staleTTL)})
}

// recall returns the unexpired memo entry for k.
func (c *Coordinator) recall(k string) (*memoEntry, bool) {
	entry, ok := c.memo.Load(k)
	if !ok {
		return nil, false
	}
	m := entry.(*memoEntry)
	if !time.Now().Before(m.expires) {
		c.memo.CompareAndDelete(k, m)
		return nil, false
	}
	return m, true
}

// Sweep drops expired memo entries and returns how many were removed.
func (c *Coordinator) Sweep(ctx context.Context) (int64, error) {
	now := time.Now()
	var removed int64
	c.memo.Range(func(k, entry any) bool {
		if ctx.Err() != nil {
			return false
		}
		if !now.Before(entry.(*memoEntry).expires) && c.memo.CompareAndDelete(k, entry) {
			removed++
		}
		return true
	})
	return removed, ctx.Err()
}

func (c *Coordinator) fail(class client.ErrorClass) {
	coordinatorFailures.WithLabelValues(string(class)).Inc()
}
