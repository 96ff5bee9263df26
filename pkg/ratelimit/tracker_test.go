package ratelimit

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewTracker_UnknownState(t *testing.T) {
	tracker := NewTracker(zerolog.Nop())

	state := tracker.State()
	if state.Daily.Known() || state.Hourly.Known() {
		t.Errorf("initial state should be unknown, got %+v", state)
	}
}

func TestTracker_Observe(t *testing.T) {
	tracker := NewTracker(zerolog.Nop())

	headers := http.Header{}
	headers.Set(HeaderDailyRemaining, "2000")
	headers.Set(HeaderHourlyRemaining, "90")
	tracker.Observe(headers)

	state := tracker.State()
	if state.Daily.Remaining != 2000 || state.Hourly.Remaining != 90 {
		t.Errorf("State() = %+v", state)
	}

	// Responses without headers keep the last known state
	tracker.Observe(http.Header{})
	if tracker.State().Daily.Remaining != 2000 {
		t.Error("Observe without headers should not reset state")
	}
}

func TestTracker_Observe_LogsExhausted(t *testing.T) {
	buf := &bytes.Buffer{}
	tracker := NewTracker(zerolog.New(buf).Level(zerolog.WarnLevel))

	headers := http.Header{}
	headers.Set(HeaderHourlyRemaining, "0")
	headers.Set(HeaderHourlyReset, time.Now().Add(time.Minute).UTC().Format(resetLayout))
	tracker.Observe(headers)

	if !strings.Contains(buf.String(), "rate limit window exhausted") {
		t.Errorf("expected exhausted warning, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), `"window":"hourly"`) {
		t.Errorf("expected hourly window field, got %q", buf.String())
	}
}
