package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/nexusmods-stats/pkg/cache"
	"github.com/Sternrassler/nexusmods-stats/pkg/coordinator"
	"github.com/Sternrassler/nexusmods-stats/pkg/logging"
	"github.com/Sternrassler/nexusmods-stats/pkg/metrics"
	"github.com/Sternrassler/nexusmods-stats/pkg/nexusmods"
	"github.com/Sternrassler/nexusmods-stats/pkg/ratelimit"
)

// Badge colors.
const (
	colorSuccess = "yellow"
	colorError   = "red"
)

// shieldsResponse is the shields.io endpoint badge schema.
type shieldsResponse struct {
	SchemaVersion int    `json:"schemaVersion"`
	Label         string `json:"label"`
	Message       string `json:"message"`
	Color         string `json:"color"`
}

func badgeSuccess(label, message string) shieldsResponse {
	return shieldsResponse{SchemaVersion: 1, Label: label, Message: message, Color: colorSuccess}
}

func badgeError(label, message string) shieldsResponse {
	return shieldsResponse{SchemaVersion: 1, Label: label, Message: message, Color: colorError}
}

// downloadLabels maps the /downloads type parameter to badge labels.
var downloadLabels = map[string]string{
	"unique": "Unique Downloads",
	"total":  "Total Downloads",
	"views":  "Total Views",
}

// server serves the badge and probe endpoints.
type server struct {
	api         *nexusmods.APIClient
	coord       *coordinator.Coordinator
	stats       *nexusmods.StatisticsClient
	status      *nexusmods.StatusClient
	backend     cache.Backend
	tracker     *ratelimit.Tracker
	outputCache *cache.MemoryBackend
	outputTTL   time.Duration
	logger      zerolog.Logger
}

// badge wraps a badge producer with the output cache. Badges are always
// served with 200 so shields.io renders the error message.
func (s *server) badge(name string, produce func(r *http.Request) shieldsResponse) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := badgeCacheKey(name, r.URL.Query())

		if s.outputCache != nil && s.outputTTL > 0 {
			if body, ok, err := s.outputCache.GetString(ctx, key); err == nil && ok {
				writeJSONBody(w, body, s.outputTTL)
				return
			}
		}

		resp := produce(r)
		result := "success"
		if resp.Color == colorError {
			result = "error"
		}
		metrics.BadgesTotal.WithLabelValues(name, result).Inc()

		body, err := json.Marshal(resp)
		if err != nil {
			logging.FromContext(ctx).Error().Err(err).Msg("Failed to encode badge")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if s.outputCache != nil && s.outputTTL > 0 {
			if err := s.outputCache.SetString(ctx, key, string(body), s.outputTTL); err != nil {
				logging.FromContext(ctx).Debug().Err(err).Msg("Failed to store badge in output cache")
			}
		}
		writeJSONBody(w, string(body), s.outputTTL)
	}
}

// badgeParams are the query parameters a badge depends on.
var badgeParams = []string{"type", "gameId", "modId"}

// badgeCacheKey derives the output cache key from the badge parameters
// only, so unrelated query parameters share one entry.
func badgeCacheKey(name string, query url.Values) string {
	normalized := url.Values{}
	for _, param := range badgeParams {
		if value := query.Get(param); value != "" {
			normalized.Set(param, value)
		}
	}
	return "badge:" + name + "?" + normalized.Encode()
}

func writeJSONBody(w http.ResponseWriter, body string, maxAge time.Duration) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if maxAge > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// modVersion serves GET /mod-version?gameId=<domain>&modId=<id>.
func (s *server) modVersion(r *http.Request) shieldsResponse {
	const label = "Version"

	query := r.URL.Query()
	gameID, modID := query.Get("gameId"), query.Get("modId")
	if gameID == "" || modID == "" {
		return badgeError(label, "Invalid 'gameId' or 'modId'!")
	}

	info, ok := s.api.GetMod(r.Context(), gameID, modID)
	if !ok || info.Version == "" {
		return badgeError(label, "Invalid 'version' from NexusMods!")
	}
	return badgeSuccess(label, info.Version)
}

// downloads serves GET /downloads?type=unique|total|views&gameId=<id>&modId=<id>.
func (s *server) downloads(r *http.Request) shieldsResponse {
	query := r.URL.Query()
	kind, gameID, modID := query.Get("type"), query.Get("gameId"), query.Get("modId")
	if kind == "" || gameID == "" || modID == "" {
		return badgeError("", "Missing required query parameters!")
	}

	label, ok := downloadLabels[kind]
	if !ok {
		return badgeError("", "Unknown type!")
	}

	entry, found, err := s.stats.FindMod(r.Context(), gameID, modID)
	if err != nil {
		logging.FromContext(r.Context()).Error().
			Err(err).
			Str("source", gameID).
			Msg("Live statistics feed is malformed")
		return badgeError(label, "Invalid statistics from NexusMods!")
	}
	if !found {
		return badgeError(label, "mod not found!")
	}

	var value int64
	switch kind {
	case "unique":
		value = entry.UniqueDownloads
	case "total":
		value = entry.TotalDownloads
	case "views":
		value = entry.TotalViews
	}
	return badgeSuccess(label, strconv.FormatInt(value, 10))
}

// healthResponse is the body of /health and /healthz.
type healthResponse struct {
	Status    string            `json:"status"`
	NexusMods *nexusmods.Health `json:"nexusmods,omitempty"`
	RateLimit *ratelimit.State  `json:"rate_limit,omitempty"`
}

// health reports liveness and the NexusMods API status. A degraded or
// unreachable NexusMods API does not fail the probe.
func (s *server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	if s.status != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		health := s.status.Check(ctx)
		resp.NexusMods = &health
	}
	if s.tracker != nil {
		state := s.tracker.State()
		resp.RateLimit = &state
	}

	writeJSON(w, http.StatusOK, resp)
}

// ready reports whether the cache backend is reachable.
func (s *server) ready(w http.ResponseWriter, r *http.Request) {
	pinger, ok := s.backend.(cache.Pinger)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := pinger.Ping(ctx); err != nil {
		logging.FromContext(r.Context()).Warn().Err(err).Msg("Readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
