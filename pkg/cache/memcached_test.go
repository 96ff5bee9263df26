package cache

import (
	"strings"
	"testing"
	"time"
)

func TestMemcachedKey(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		wantHashed bool
	}{
		{
			name:       "short key kept",
			key:        NewKey("/v1/games/skyrim/mods/1.json", "k").String(),
			wantHashed: false,
		},
		{
			name:       "key with space hashed",
			key:        "nexusmods:/a b:fp",
			wantHashed: true,
		},
		{
			name:       "long key hashed",
			key:        "nexusmods:/" + strings.Repeat("a", 300),
			wantHashed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := memcachedKey(tt.key)
			hashed := got != tt.key
			if hashed != tt.wantHashed {
				t.Errorf("memcachedKey(%q) hashed = %v, want %v", tt.key, hashed, tt.wantHashed)
			}
			if len(got) > maxMemcachedKeyLen {
				t.Errorf("memcachedKey length = %d, exceeds %d", len(got), maxMemcachedKeyLen)
			}
			if got != memcachedKey(tt.key) {
				t.Error("memcachedKey is not deterministic")
			}
		})
	}
}

func TestExpirationSeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{5 * time.Minute, 300},
		{500 * time.Millisecond, 1},
		{60 * 24 * time.Hour, int32(maxRelativeExpiration / time.Second)},
	}

	for _, tt := range tests {
		t.Run(tt.ttl.String(), func(t *testing.T) {
			if got := expirationSeconds(tt.ttl); got != tt.want {
				t.Errorf("expirationSeconds(%v) = %d, want %d", tt.ttl, got, tt.want)
			}
		})
	}
}

func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" host1:11211, ,host2:11211 ")
	if len(got) != 2 || got[0] != "host1:11211" || got[1] != "host2:11211" {
		t.Errorf("parseAddrs() = %v", got)
	}
}
