package ratelimit

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nexusmods_rate_limit_remaining",
		Help: "Requests remaining in the NexusMods rate limit window",
	}, []string{"window"}) // "daily", "hourly"

	rateLimitExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexusmods_rate_limit_exhausted_total",
		Help: "Responses observed with an exhausted rate limit window",
	}, []string{"window"})
)

// Tracker keeps the last observed rate limit state.
type Tracker struct {
	mu     sync.RWMutex
	state  State
	logger zerolog.Logger
}

// NewTracker creates a new rate limit tracker.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		state: State{
			Daily:  Window{Limit: -1, Remaining: -1},
			Hourly: Window{Limit: -1, Remaining: -1},
		},
		logger: logger,
	}
}

// Observe records the windows reported by headers. Responses without rate
// limit headers leave the state unchanged.
func (t *Tracker) Observe(headers http.Header) {
	state := ParseState(headers)
	if !state.Daily.Known() && !state.Hourly.Known() {
		return
	}

	t.mu.Lock()
	t.state = state
	t.mu.Unlock()

	t.record("daily", state.Daily)
	t.record("hourly", state.Hourly)
}

func (t *Tracker) record(name string, w Window) {
	if !w.Known() {
		return
	}
	rateLimitRemaining.WithLabelValues(name).Set(float64(w.Remaining))

	if w.Exhausted() {
		rateLimitExhaustedTotal.WithLabelValues(name).Inc()
		t.logger.Warn().
			Str("window", name).
			Time("reset_at", w.ResetAt).
			Dur("wait_duration", w.TimeUntilReset()).
			Msg("NexusMods rate limit window exhausted")
		return
	}

	t.logger.Debug().
		Str("window", name).
		Int("remaining", w.Remaining).
		Int("limit", w.Limit).
		Msg("NexusMods rate limit state updated")
}

// State returns the last observed state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}
