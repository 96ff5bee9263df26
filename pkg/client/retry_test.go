package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/nexusmods-stats/pkg/ratelimit"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		WaitMin:    time.Millisecond,
		WaitMax:    5 * time.Millisecond,
		Timeout:    time.Second,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", config.MaxRetries)
	}
	if config.WaitMin != 1*time.Second {
		t.Errorf("WaitMin = %v, want 1s", config.WaitMin)
	}
	if config.WaitMax != 30*time.Second {
		t.Errorf("WaitMax = %v, want 30s", config.WaitMax)
	}
}

func TestRetryingClient_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	httpClient := NewRetryingHTTPClient(fastRetryConfig(), zerolog.Nop())
	resp, err := httpClient.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3", got)
	}
}

func TestRetryingClient_NoRetryOnClientError(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	httpClient := NewRetryingHTTPClient(fastRetryConfig(), zerolog.Nop())
	resp, err := httpClient.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", resp.StatusCode)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestRetryingClient_ExhaustedPassesThroughResponse(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	httpClient := NewRetryingHTTPClient(fastRetryConfig(), zerolog.Nop())
	resp, err := httpClient.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v, want last response passed through", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", resp.StatusCode)
	}
	if got := hits.Load(); got != 4 {
		t.Errorf("server hits = %d, want 4 (1 + 3 retries)", got)
	}
}

func TestRetryingClient_ObservesRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(ratelimit.HeaderDailyRemaining, "42")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := fastRetryConfig()
	cfg.Tracker = ratelimit.NewTracker(zerolog.Nop())

	resp, err := NewRetryingHTTPClient(cfg, zerolog.Nop()).Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if got := cfg.Tracker.State().Daily.Remaining; got != 42 {
		t.Errorf("Daily.Remaining = %d, want 42", got)
	}
}

func TestCheckRetry(t *testing.T) {
	check := checkRetry(nil)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		ctx     context.Context
		resp    *http.Response
		err     error
		want    bool
		wantErr bool
	}{
		{name: "transport error", ctx: context.Background(), err: errors.New("connection refused"), want: true},
		{name: "500", ctx: context.Background(), resp: &http.Response{StatusCode: 500}, want: true},
		{name: "408", ctx: context.Background(), resp: &http.Response{StatusCode: 408}, want: true},
		{name: "429", ctx: context.Background(), resp: &http.Response{StatusCode: 429}, want: true},
		{name: "404", ctx: context.Background(), resp: &http.Response{StatusCode: 404}, want: false},
		{name: "200", ctx: context.Background(), resp: &http.Response{StatusCode: 200}, want: false},
		{name: "canceled", ctx: canceled, err: context.Canceled, want: false, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := check(tt.ctx, tt.resp, tt.err)
			if got != tt.want {
				t.Errorf("checkRetry() = %v, want %v", got, tt.want)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("checkRetry() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBackoff_Exponential(t *testing.T) {
	for attempt := 0; attempt < 4; attempt++ {
		want := time.Second * time.Duration(1<<attempt)
		got := backoff(time.Second, time.Minute, attempt, nil)
		if got < want*8/10 || got > want*12/10 {
			t.Errorf("attempt %d: backoff = %v, want %v +/-20%%", attempt, got, want)
		}
	}

	if got := backoff(time.Second, 3*time.Second, 10, nil); got > 3600*time.Millisecond {
		t.Errorf("backoff = %v, want capped near 3s", got)
	}
}

func TestBackoff_RateLimited(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	resp.Header.Set(ratelimit.HeaderHourlyRemaining, "0")
	resp.Header.Set(ratelimit.HeaderHourlyReset, time.Now().Add(10*time.Minute).UTC().Format(time.RFC3339))

	got := backoff(time.Second, 30*time.Second, 0, resp)
	if got < 9*time.Minute || got > 10*time.Minute {
		t.Errorf("backoff = %v, want ~10m from the hourly window", got)
	}

	// Without rate limit headers a 429 backs off normally
	plain := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	if got := backoff(time.Second, 30*time.Second, 0, plain); got > 2*time.Second {
		t.Errorf("backoff = %v, want ~1s", got)
	}
}

// slowBodyServer sends the headers at once and the second half of the body
// after pause.
func slowBodyServer(pause time.Duration) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "1,1,1,1\n")
		w.(http.Flusher).Flush()
		select {
		case <-time.After(pause):
		case <-r.Context().Done():
			return
		}
		io.WriteString(w, "2,2,2,2\n")
	}))
}

func TestStreamingClient_BodyOutlivesTimeout(t *testing.T) {
	server := slowBodyServer(300 * time.Millisecond)
	defer server.Close()

	cfg := fastRetryConfig()
	cfg.Timeout = 100 * time.Millisecond
	httpClient := NewStreamingHTTPClient(cfg, zerolog.Nop())

	resp, err := httpClient.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(body) != "1,1,1,1\n2,2,2,2\n" {
		t.Errorf("body = %q", body)
	}
}

func TestRetryingClient_TimeoutCoversBody(t *testing.T) {
	server := slowBodyServer(300 * time.Millisecond)
	defer server.Close()

	cfg := fastRetryConfig()
	cfg.Timeout = 100 * time.Millisecond
	httpClient := NewRetryingHTTPClient(cfg, zerolog.Nop())

	resp, err := httpClient.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	if _, err := io.ReadAll(resp.Body); err == nil {
		t.Error("ReadAll() error = nil, want timeout")
	}
}

func TestStreamingClient_HeaderTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	cfg := fastRetryConfig()
	cfg.MaxRetries = 0
	cfg.Timeout = 50 * time.Millisecond
	httpClient := NewStreamingHTTPClient(cfg, zerolog.Nop())

	start := time.Now()
	resp, err := httpClient.Get(server.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("Get() error = nil, want response header timeout")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Get() took %v, want it bounded by the header timeout", elapsed)
	}
}
