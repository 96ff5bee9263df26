// Package testutil provides a mock NexusMods upstream for tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockNexusMods is a configurable mock of the NexusMods API and stats
// hosts. Both are served from the same server; paths do not collide.
type MockNexusMods struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	PathCounts        map[string]int
	LastRequestHeader http.Header
}

// NewMockNexusMods creates a new mock server. Unconfigured paths return 404.
func NewMockNexusMods() *MockNexusMods {
	mock := &MockNexusMods{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		PathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL with a trailing slash.
func (m *MockNexusMods) URL() string {
	return m.server.URL + "/"
}

// Close shuts down the mock server.
func (m *MockNexusMods) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockNexusMods) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCounts = make(map[string]int)
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockNexusMods) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockNexusMods) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockNexusMods) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests made for path.
func (m *MockNexusMods) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockNexusMods) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// ModPath returns the API path of a mod.
func ModPath(gameDomain string, modID int) string {
	return fmt.Sprintf("/v1/games/%s/mods/%d.json", gameDomain, modID)
}

// StatsPath returns the path of a game's live download counts feed.
func StatsPath(gameID int) string {
	return fmt.Sprintf("/live_download_counts/mods/%d.csv", gameID)
}

// ModJSON renders a minimal mod payload.
func ModJSON(modID int, name, version string) string {
	return fmt.Sprintf(`{"mod_id":%d,"game_id":110,"domain_name":"skyrimspecialedition","name":%q,"version":%q,"available":true,"status":"published"}`,
		modID, name, version)
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type":          "application/json; charset=utf-8",
			"X-RL-Daily-Limit":      "2500",
			"X-RL-Daily-Remaining":  "2499",
			"X-RL-Hourly-Limit":     "100",
			"X-RL-Hourly-Remaining": "99",
		},
	}
}

// NewCSVResponse creates a 200 OK feed response from rows.
func NewCSVResponse(rows ...string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       strings.Join(rows, "\n") + "\n",
		Headers: map[string]string{
			"Content-Type": "text/csv",
		},
	}
}

// NewRateLimitResponse creates a 429 response with an exhausted hourly
// window resetting after reset.
func NewRateLimitResponse(reset time.Duration) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message":"Rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type":          "application/json; charset=utf-8",
			"X-RL-Daily-Remaining":  "100",
			"X-RL-Hourly-Remaining": "0",
			"X-RL-Hourly-Reset":     time.Now().Add(reset).UTC().Format(time.RFC3339),
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message":"Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 response in the API's error format.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"code":404,"message":"No Mod Found"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
