package cache

import (
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{
			name:    "expired entry",
			expires: time.Now().Add(-1 * time.Hour),
			want:    true,
		},
		{
			name:    "valid entry",
			expires: time.Now().Add(1 * time.Hour),
			want:    false,
		},
		{
			name:    "just expired",
			expires: time.Now().Add(-1 * time.Second),
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{Expires: tt.expires}
			if got := entry.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_TTL(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		wantMin time.Duration
		wantMax time.Duration
	}{
		{
			name:    "one hour remaining",
			expires: time.Now().Add(1 * time.Hour),
			wantMin: 59 * time.Minute,
			wantMax: 61 * time.Minute,
		},
		{
			name:    "already expired",
			expires: time.Now().Add(-1 * time.Hour),
			wantMin: 0,
			wantMax: 0,
		},
		{
			name:    "5 minutes remaining",
			expires: time.Now().Add(5 * time.Minute),
			wantMin: 4*time.Minute + 59*time.Second,
			wantMax: 5*time.Minute + 1*time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{Expires: tt.expires}
			got := entry.TTL()
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("TTL() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestEntry_ExpiredAtDeadline(t *testing.T) {
	deadline := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	entry := &Entry{Value: "payload", Expires: deadline}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before deadline", deadline.Add(-time.Nanosecond), false},
		{"at deadline", deadline, true},
		{"after deadline", deadline.Add(time.Nanosecond), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := entry.expiredAt(tt.now); got != tt.want {
				t.Errorf("expiredAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMemoryBackend_SweepAtDeadline(t *testing.T) {
	deadline := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	backend := NewMemoryBackend()
	backend.data["badge:a"] = Entry{Value: "a", Expires: deadline}
	backend.data["badge:b"] = Entry{Value: "b", Expires: deadline.Add(time.Second)}

	if removed := backend.sweepAt(deadline.Add(-time.Nanosecond)); removed != 0 {
		t.Errorf("sweepAt(before) removed %d, want 0", removed)
	}
	if removed := backend.sweepAt(deadline); removed != 1 {
		t.Errorf("sweepAt(deadline) removed %d, want 1", removed)
	}
	if _, ok := backend.data["badge:b"]; !ok {
		t.Error("entry with a later deadline was removed")
	}
	if got := backend.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}
