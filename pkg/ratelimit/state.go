// Package ratelimit parses the NexusMods X-RL-* rate limit headers.
//
// The API reports a daily and an hourly window:
//
//	X-RL-Daily-Limit / X-RL-Daily-Remaining / X-RL-Daily-Reset
//	X-RL-Hourly-Limit / X-RL-Hourly-Remaining / X-RL-Hourly-Reset
//
// When a window is exhausted the retry policy waits until its reset instead
// of using exponential backoff.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Header names for the two rate limit windows.
const (
	HeaderDailyLimit     = "X-RL-Daily-Limit"
	HeaderDailyRemaining = "X-RL-Daily-Remaining"
	HeaderDailyReset     = "X-RL-Daily-Reset"

	HeaderHourlyLimit     = "X-RL-Hourly-Limit"
	HeaderHourlyRemaining = "X-RL-Hourly-Remaining"
	HeaderHourlyReset     = "X-RL-Hourly-Reset"
)

// Maximum delays accepted from the reset headers. A reset further away than
// the window length is treated as bogus.
const (
	MaxDailyDelay  = 24 * time.Hour
	MaxHourlyDelay = time.Hour
)

// resetLayouts are the timestamp formats seen in X-RL-*-Reset headers.
var resetLayouts = []string{
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	http.TimeFormat,
}

// Window is the state of one rate limit window.
type Window struct {
	// Limit is the number of requests allowed per window (-1 if unknown)
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the window (-1 if unknown)
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets (zero if unknown)
	ResetAt time.Time `json:"reset_at"`
}

// Known reports whether the window was present in the headers.
func (w Window) Known() bool {
	return w.Remaining >= 0
}

// Exhausted returns true if no requests are left in the window.
func (w Window) Exhausted() bool {
	return w.Remaining == 0
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time is unknown or has already passed.
func (w Window) TimeUntilReset() time.Duration {
	if w.ResetAt.IsZero() {
		return 0
	}
	duration := time.Until(w.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// State is the rate limit state observed on the last response.
type State struct {
	Daily  Window `json:"daily"`
	Hourly Window `json:"hourly"`

	// LastUpdate is when the state was observed.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// ParseState extracts both windows from headers.
func ParseState(headers http.Header) State {
	return State{
		Daily:      parseWindow(headers, HeaderDailyLimit, HeaderDailyRemaining, HeaderDailyReset),
		Hourly:     parseWindow(headers, HeaderHourlyLimit, HeaderHourlyRemaining, HeaderHourlyReset),
		LastUpdate: time.Now(),
	}
}

func parseWindow(headers http.Header, limitKey, remainingKey, resetKey string) Window {
	w := Window{
		Limit:     parseIntOr(headers.Get(limitKey), -1),
		Remaining: parseIntOr(headers.Get(remainingKey), -1),
	}
	if resetAt, ok := parseReset(headers.Get(resetKey)); ok {
		w.ResetAt = resetAt
	}
	return w
}

func parseIntOr(s string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return v
}

// parseReset parses a reset timestamp in any known layout. Timestamps
// without a zone are read as UTC.
func parseReset(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range resetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseWindow returns the delay until the window identified by remainingKey
// and resetKey resets, if that window is exhausted and the delay is positive
// and shorter than maxDelay.
func ParseWindow(headers http.Header, remainingKey, resetKey string, maxDelay time.Duration) (time.Duration, bool) {
	remaining, err := strconv.Atoi(strings.TrimSpace(headers.Get(remainingKey)))
	if err != nil || remaining != 0 {
		return 0, false
	}
	resetAt, ok := parseReset(headers.Get(resetKey))
	if !ok {
		return 0, false
	}
	delay := time.Until(resetAt)
	if delay <= 0 || delay >= maxDelay {
		return 0, false
	}
	return delay, true
}

// RetryDelay returns how long to wait before retrying a rate limited
// request: the daily window first, then the hourly one.
func RetryDelay(headers http.Header) (time.Duration, bool) {
	if delay, ok := ParseWindow(headers, HeaderDailyRemaining, HeaderDailyReset, MaxDailyDelay); ok {
		return delay, true
	}
	return ParseWindow(headers, HeaderHourlyRemaining, HeaderHourlyReset, MaxHourlyDelay)
}
