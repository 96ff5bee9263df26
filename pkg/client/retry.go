package client

import (
	"context"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/nexusmods-stats/pkg/ratelimit"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexusmods_retries_total",
		Help: "Total number of retry attempts by reason",
	}, []string{"reason"}) // "transport", "429", "503", ...

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nexusmods_retry_backoff_seconds",
		Help:    "Backoff duration before a retry by reason",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 600, 3600},
	}, []string{"reason"})
)

// RetryConfig holds the configuration of the retry policy layer.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial request.
	MaxRetries int

	// WaitMin is the first backoff; later backoffs double.
	WaitMin time.Duration

	// WaitMax caps the exponential backoff. Waits derived from rate limit
	// headers are not capped.
	WaitMax time.Duration

	// Timeout applies to each attempt. See NewStreamingHTTPClient for what it
	// covers when streaming.
	Timeout time.Duration

	// Tracker, if set, observes the rate limit headers of every response.
	Tracker *ratelimit.Tracker
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		WaitMin:    1 * time.Second,
		WaitMax:    30 * time.Second,
		Timeout:    30 * time.Second,
	}
}

// NewRetryingHTTPClient builds an *http.Client that retries transport
// failures, 5xx, 408 and 429 responses. When retries are exhausted the last
// response is returned as is so callers see the real status.
//
// Timeout covers each attempt including reading the body, so callers must
// read the body promptly.
func NewRetryingHTTPClient(cfg RetryConfig, logger zerolog.Logger) *http.Client {
	cfg = cfg.withDefaults()
	return newRetryableClient(cfg, &http.Client{Timeout: cfg.Timeout}, logger)
}

// NewStreamingHTTPClient is NewRetryingHTTPClient for responses consumed
// incrementally. Timeout bounds dialing and waiting for the response headers
// only; the body may be read for as long as the request context allows.
func NewStreamingHTTPClient(cfg RetryConfig, logger zerolog.Logger) *http.Client {
	cfg = cfg.withDefaults()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   cfg.Timeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = cfg.Timeout
	transport.ResponseHeaderTimeout = cfg.Timeout

	return newRetryableClient(cfg, &http.Client{Transport: transport}, logger)
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	defaults := DefaultRetryConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.WaitMin <= 0 {
		cfg.WaitMin = defaults.WaitMin
	}
	if cfg.WaitMax < cfg.WaitMin {
		cfg.WaitMax = cfg.WaitMin
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	return cfg
}

func newRetryableClient(cfg RetryConfig, httpClient *http.Client, logger zerolog.Logger) *http.Client {
	rclient := &retryablehttp.Client{
		HTTPClient:   httpClient,
		Logger:       leveledLogger{logger: logger},
		RetryWaitMin: cfg.WaitMin,
		RetryWaitMax: cfg.WaitMax,
		RetryMax:     cfg.MaxRetries,
		CheckRetry:   checkRetry(cfg.Tracker),
		Backoff:      backoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}
	return rclient.StandardClient()
}

// checkRetry decides whether a request is retried. Caller cancellation is
// never retried.
func checkRetry(tracker *ratelimit.Tracker) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		if err != nil {
			return true, nil
		}
		if tracker != nil {
			tracker.Observe(resp.Header)
		}
		return shouldRetry(resp.StatusCode), nil
	}
}

// backoff waits for the rate limit window to reset on 429 and otherwise
// backs off exponentially with jitter.
func backoff(minWait, maxWait time.Duration, attempt int, resp *http.Response) time.Duration {
	reason := "transport"
	if resp != nil {
		reason = strconv.Itoa(resp.StatusCode)
	}

	wait := exponentialJitter(minWait, maxWait, attempt)
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		if delay, ok := ratelimit.RetryDelay(resp.Header); ok {
			wait = delay
		}
	}

	retriesTotal.WithLabelValues(reason).Inc()
	retryBackoffSeconds.WithLabelValues(reason).Observe(wait.Seconds())
	return wait
}

// exponentialJitter returns minWait*2^attempt capped at maxWait, spread by
// +/-20%.
func exponentialJitter(minWait, maxWait time.Duration, attempt int) time.Duration {
	base := float64(minWait) * math.Pow(2, float64(attempt))
	if base > float64(maxWait) || math.IsInf(base, 0) {
		base = float64(maxWait)
	}
	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(base * jitter)
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger zerolog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

var _ retryablehttp.LeveledLogger = leveledLogger{}
