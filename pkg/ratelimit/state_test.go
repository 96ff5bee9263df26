package ratelimit

import (
	"net/http"
	"testing"
	"time"
)

const resetLayout = "2006-01-02 15:04:05 -0700"

func TestState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *State
		maxAge   time.Duration
		expected bool
	}{
		{
			name:     "fresh state",
			state:    &State{LastUpdate: time.Now()},
			maxAge:   5 * time.Minute,
			expected: false,
		},
		{
			name:     "stale state",
			state:    &State{LastUpdate: time.Now().Add(-10 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.state.IsStale(tt.maxAge); result != tt.expected {
				t.Errorf("IsStale() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestParseState(t *testing.T) {
	reset := time.Now().Add(30 * time.Minute).UTC().Truncate(time.Second)

	headers := http.Header{}
	headers.Set(HeaderDailyLimit, "2500")
	headers.Set(HeaderDailyRemaining, "2400")
	headers.Set(HeaderDailyReset, reset.Format(resetLayout))
	headers.Set(HeaderHourlyLimit, "100")
	headers.Set(HeaderHourlyRemaining, "0")
	headers.Set(HeaderHourlyReset, reset.Format(time.RFC3339))

	state := ParseState(headers)

	if state.Daily.Limit != 2500 || state.Daily.Remaining != 2400 {
		t.Errorf("Daily = %+v", state.Daily)
	}
	if !state.Daily.ResetAt.Equal(reset) {
		t.Errorf("Daily.ResetAt = %v, want %v", state.Daily.ResetAt, reset)
	}
	if !state.Hourly.Exhausted() {
		t.Error("Hourly window should be exhausted")
	}
	if !state.Hourly.ResetAt.Equal(reset) {
		t.Errorf("Hourly.ResetAt = %v, want %v", state.Hourly.ResetAt, reset)
	}
}

func TestParseState_MissingHeaders(t *testing.T) {
	state := ParseState(http.Header{})

	if state.Daily.Known() || state.Hourly.Known() {
		t.Errorf("windows should be unknown, got %+v", state)
	}
	if state.Daily.TimeUntilReset() != 0 {
		t.Error("unknown window should have no reset delay")
	}
}

func TestParseWindow(t *testing.T) {
	soon := time.Now().Add(10 * time.Minute).UTC()

	tests := []struct {
		name      string
		remaining string
		reset     string
		maxDelay  time.Duration
		wantOK    bool
	}{
		{
			name:      "exhausted with future reset",
			remaining: "0",
			reset:     soon.Format(resetLayout),
			maxDelay:  time.Hour,
			wantOK:    true,
		},
		{
			name:      "requests remaining",
			remaining: "5",
			reset:     soon.Format(resetLayout),
			maxDelay:  time.Hour,
			wantOK:    false,
		},
		{
			name:      "reset in the past",
			remaining: "0",
			reset:     time.Now().Add(-time.Minute).UTC().Format(resetLayout),
			maxDelay:  time.Hour,
			wantOK:    false,
		},
		{
			name:      "reset beyond max delay",
			remaining: "0",
			reset:     soon.Format(resetLayout),
			maxDelay:  time.Minute,
			wantOK:    false,
		},
		{
			name:      "unparseable reset",
			remaining: "0",
			reset:     "tomorrow",
			maxDelay:  time.Hour,
			wantOK:    false,
		},
		{
			name:      "missing remaining",
			remaining: "",
			reset:     soon.Format(resetLayout),
			maxDelay:  time.Hour,
			wantOK:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			headers.Set(HeaderHourlyRemaining, tt.remaining)
			headers.Set(HeaderHourlyReset, tt.reset)

			delay, ok := ParseWindow(headers, HeaderHourlyRemaining, HeaderHourlyReset, tt.maxDelay)
			if ok != tt.wantOK {
				t.Fatalf("ParseWindow() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (delay <= 9*time.Minute || delay > 10*time.Minute) {
				t.Errorf("delay = %v, want ~10m", delay)
			}
		})
	}
}

func TestRetryDelay_PrefersDaily(t *testing.T) {
	headers := http.Header{}
	headers.Set(HeaderDailyRemaining, "0")
	headers.Set(HeaderDailyReset, time.Now().Add(2*time.Hour).UTC().Format(resetLayout))
	headers.Set(HeaderHourlyRemaining, "0")
	headers.Set(HeaderHourlyReset, time.Now().Add(10*time.Minute).UTC().Format(resetLayout))

	delay, ok := RetryDelay(headers)
	if !ok {
		t.Fatal("expected a delay")
	}
	if delay < 119*time.Minute {
		t.Errorf("delay = %v, want the daily window (~2h)", delay)
	}
}

func TestRetryDelay_FallsBackToHourly(t *testing.T) {
	headers := http.Header{}
	headers.Set(HeaderDailyRemaining, "100")
	headers.Set(HeaderHourlyRemaining, "0")
	headers.Set(HeaderHourlyReset, time.Now().Add(10*time.Minute).UTC().Format(resetLayout))

	delay, ok := RetryDelay(headers)
	if !ok {
		t.Fatal("expected a delay")
	}
	if delay > 10*time.Minute {
		t.Errorf("delay = %v, want the hourly window (~10m)", delay)
	}

	if _, ok := RetryDelay(http.Header{}); ok {
		t.Error("no headers should not produce a delay")
	}
}
