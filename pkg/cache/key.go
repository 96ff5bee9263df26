package cache

import (
	"crypto/sha512"
	"encoding/base64"
	"strings"
)

const (
	keyPrefix   = "nexusmods"
	staleSuffix = "stale"
)

// CacheKey identifies a cached upstream payload.
type CacheKey struct {
	// Path is the upstream resource path (e.g., "/v1/games/skyrim/mods/1.json")
	Path string

	// Fingerprint is the one-way digest of the credential used for the request
	Fingerprint string
}

// NewKey derives the cache key for a resource path requested with credential.
func NewKey(path, credential string) CacheKey {
	return CacheKey{
		Path:        path,
		Fingerprint: Fingerprint(credential),
	}
}

// Fingerprint returns the base64 rendered SHA-512 digest of credential.
func Fingerprint(credential string) string {
	sum := sha512.Sum512([]byte(credential))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// String generates the deterministic cache key string.
// Format: nexusmods:<path>:<fingerprint>
//
// Example:
//
//	nexusmods:/v1/games/skyrim/mods/1.json:<88 base64 chars>
func (k CacheKey) String() string {
	var b strings.Builder
	b.Grow(len(keyPrefix) + len(k.Path) + len(k.Fingerprint) + 2)
	b.WriteString(keyPrefix)
	b.WriteByte(':')
	b.WriteString(k.Path)
	b.WriteByte(':')
	b.WriteString(k.Fingerprint)
	return b.String()
}

// Stale returns the key of the shadow slot that keeps the last good payload
// for stale-on-error fallback after the primary entry expired.
func (k CacheKey) Stale() string {
	return k.String() + ":" + staleSuffix
}
