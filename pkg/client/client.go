// Package client provides the upstream HTTP fetcher, the error taxonomy of
// the fetch path and the retry policy layer wired in at bootstrap.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream requests.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexusmods_upstream_requests_total",
		Help: "Total upstream requests by upstream and status",
	}, []string{"upstream", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nexusmods_upstream_request_duration_seconds",
		Help:    "Time until upstream response headers by upstream",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"upstream"})
)

// Fetcher performs a single GET against a fixed base endpoint.
type Fetcher interface {
	// Get requests path relative to the base endpoint. A transport failure
	// is returned as an error; any received response, including non-2xx,
	// is returned with a nil error. The caller must close Body.
	Get(ctx context.Context, path string, header http.Header) (*Response, error)
}

// Response is an upstream response with a streaming body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// IsSuccess reports whether the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return IsSuccessStatus(r.StatusCode)
}

// Text reads the whole body and closes it.
func (r *Response) Text() (string, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	return string(body), nil
}

// Close closes the body.
func (r *Response) Close() error {
	return r.Body.Close()
}

// Config holds the fetcher configuration.
type Config struct {
	// BaseURL is the upstream endpoint, e.g. "https://api.nexusmods.com/"
	BaseURL string

	// Name labels metrics and logs (e.g. "api", "stats")
	Name string

	// UserAgent header sent on every request (REQUIRED)
	UserAgent string

	// HTTPClient performs the requests. Timeouts and retries are configured
	// here, not in the fetcher.
	HTTPClient *http.Client

	// Logger (default: component logger "fetcher")
	Logger *zerolog.Logger
}

// HTTPFetcher implements Fetcher over net/http.
type HTTPFetcher struct {
	base       *url.URL
	name       string
	userAgent  string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPFetcher creates a fetcher for cfg.BaseURL.
func NewHTTPFetcher(cfg Config) (*HTTPFetcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	name := cfg.Name
	if name == "" {
		name = base.Host
	}

	logger := log.With().Str("component", "fetcher").Str("upstream", name).Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("upstream", name).Logger()
	}

	return &HTTPFetcher{
		base:       base,
		name:       name,
		userAgent:  cfg.UserAgent,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// resolve joins path onto the base URL. Leading slashes are relative to the
// base, not the host root.
func (f *HTTPFetcher) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, err
	}
	return f.base.ResolveReference(ref), nil
}

// Get implements Fetcher.
func (f *HTTPFetcher) Get(ctx context.Context, path string, header http.Header) (*Response, error) {
	target, err := f.resolve(path)
	if err != nil {
		return nil, &UpstreamError{Path: path, ErrorClass: ErrorClassTransport, Err: fmt.Errorf("build url: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, &UpstreamError{Path: path, ErrorClass: ErrorClassTransport, Err: fmt.Errorf("create request: %w", err)}
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("User-Agent", f.userAgent)

	f.logger.Debug().Str("path", path).Msg("Executing upstream request")

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	upstreamRequestDuration.WithLabelValues(f.name).Observe(time.Since(start).Seconds())
	if err != nil {
		upstreamRequestsTotal.WithLabelValues(f.name, "transport_error").Inc()
		return nil, &UpstreamError{Path: path, ErrorClass: ErrorClassTransport, Err: err}
	}

	upstreamRequestsTotal.WithLabelValues(f.name, strconv.Itoa(resp.StatusCode)).Inc()
	if !IsSuccessStatus(resp.StatusCode) {
		f.logger.Warn().
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("Upstream returned non-success status")
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}
