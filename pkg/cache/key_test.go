package cache

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("secret-api-key")

	raw, err := base64.StdEncoding.DecodeString(fp)
	if err != nil {
		t.Fatalf("fingerprint is not base64: %v", err)
	}
	if len(raw) != 64 {
		t.Errorf("digest length = %d, want 64", len(raw))
	}
	if strings.Contains(fp, "secret-api-key") {
		t.Error("fingerprint must not contain the raw credential")
	}
}

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "mod info path",
			key: CacheKey{
				Path:        "/v1/games/skyrim/mods/1.json",
				Fingerprint: "abc",
			},
			want: "nexusmods:/v1/games/skyrim/mods/1.json:abc",
		},
		{
			name: "empty fingerprint",
			key: CacheKey{
				Path: "/v1/games/skyrim/mods/1.json",
			},
			want: "nexusmods:/v1/games/skyrim/mods/1.json:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("CacheKey.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheKey_Stale(t *testing.T) {
	key := CacheKey{Path: "/p", Fingerprint: "f"}
	if got, want := key.Stale(), "nexusmods:/p:f:stale"; got != want {
		t.Errorf("Stale() = %v, want %v", got, want)
	}
}

// TestNewKey_Determinism ensures same input always produces same key
func TestNewKey_Determinism(t *testing.T) {
	const path = "/v1/games/skyrim/mods/1.json"

	first := NewKey(path, "key-a").String()
	for i := 0; i < 10; i++ {
		if got := NewKey(path, "key-a").String(); got != first {
			t.Errorf("result[%d] = %v, want %v (not deterministic)", i, got, first)
		}
	}

	// Known digest so that keys stay stable across process restarts.
	want := "nexusmods:" + path + ":" + Fingerprint("key-a")
	if first != want {
		t.Errorf("NewKey().String() = %v, want %v", first, want)
	}
}

func TestNewKey_TenantIsolation(t *testing.T) {
	const path = "/v1/games/skyrim/mods/1.json"

	a := NewKey(path, "key-a").String()
	b := NewKey(path, "key-b").String()
	if a == b {
		t.Errorf("different credentials produced the same key %q", a)
	}
	if strings.Contains(a, "key-a") || strings.Contains(b, "key-b") {
		t.Error("cache key must not contain the raw credential")
	}
}
