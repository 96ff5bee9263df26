// Command nexusmods-stats serves shields.io badges for NexusMods mods: the
// current version from the API and live download counts from the stats feed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/nexusmods-stats/pkg/cache"
	"github.com/Sternrassler/nexusmods-stats/pkg/client"
	"github.com/Sternrassler/nexusmods-stats/pkg/coordinator"
	"github.com/Sternrassler/nexusmods-stats/pkg/lock"
	"github.com/Sternrassler/nexusmods-stats/pkg/logging"
	"github.com/Sternrassler/nexusmods-stats/pkg/metrics"
	"github.com/Sternrassler/nexusmods-stats/pkg/nexusmods"
	"github.com/Sternrassler/nexusmods-stats/pkg/ratelimit"
	"github.com/Sternrassler/nexusmods-stats/pkg/statistics"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func userAgent() string {
	return fmt.Sprintf("nexusmods-stats v%s (github.com/Sternrassler/nexusmods-stats)", version)
}

func main() {
	cfg, err := LoadConfig(nil)
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		log.Fatal().
			Err(err).
			Str("error_class", string(client.Classify(err))).
			Msg("Invalid configuration")
	}

	logger := logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.LogLevel),
		Pretty:  cfg.LogPretty,
		Service: "nexusmods-stats",
		Version: version,
		Output:  os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		stop()
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, cfg Config, logger zerolog.Logger) error {
	backend, closeBackend, err := openBackend(ctx, cfg, logging.NewLogger("cache"))
	if err != nil {
		return err
	}
	defer closeBackend()

	srv, err := newServer(cfg, backend)
	if err != nil {
		return err
	}

	if s, ok := backend.(sweeper); ok {
		go runSweeper(ctx, s, cfg.SweepInterval, logging.NewLogger("sweeper"))
	}
	go runSweeper(ctx, srv.outputCache, outputSweepInterval(cfg.OutputCacheTTL), logging.NewLogger("sweeper"))
	go runSweeper(ctx, srv.coord, cfg.SweepInterval, logging.NewLogger("sweeper"))

	if cfg.UptimeKumaEndpoint != "" {
		pusher, err := newUptimePusher(cfg.UptimeKumaEndpoint, srv.status, userAgent(), logging.NewLogger("uptime"))
		if err != nil {
			return fmt.Errorf("parse UPTIME_KUMA_ENDPOINT: %w", err)
		}
		go pusher.run(ctx, cfg.UptimeKumaInterval)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", httpServer.Addr).
			Str("cache_backend", cfg.CacheBackend).
			Str("user_agent", userAgent()).
			Msg("Starting nexusmods-stats server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// outputSweepInterval is how often expired badges are purged. Zero disables
// the sweep along with the output cache.
func outputSweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return max(ttl, time.Second)
}

// newLocker returns a striped pool when LOCK_STRIPES is set, otherwise a
// per-key registry.
func newLocker(cfg Config, name string) lock.Locker {
	if cfg.LockStripes > 0 {
		return lock.NewStriped(name, cfg.LockStripes)
	}
	return lock.NewRegistry(name)
}

// newServer wires the clients on top of backend.
func newServer(cfg Config, backend cache.Backend) (*server, error) {
	ua := userAgent()
	tracker := ratelimit.NewTracker(logging.NewLogger("ratelimit"))

	retryCfg := client.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.RetryMax
	retryCfg.Timeout = cfg.UpstreamTimeout
	retryCfg.Tracker = tracker
	upstreamHTTP := client.NewRetryingHTTPClient(retryCfg, logging.NewLogger("retry"))

	fetcherLogger := logging.NewLogger("fetcher")
	apiFetcher, err := client.NewHTTPFetcher(client.Config{
		BaseURL:    cfg.APIBaseURL,
		Name:       "api",
		UserAgent:  ua,
		HTTPClient: upstreamHTTP,
		Logger:     &fetcherLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("api fetcher: %w", err)
	}

	statsFetcher, err := client.NewHTTPFetcher(client.Config{
		BaseURL:    cfg.StatsBaseURL,
		Name:       "stats",
		UserAgent:  ua,
		HTTPClient: client.NewStreamingHTTPClient(retryCfg, logging.NewLogger("retry")),
		Logger:     &fetcherLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("stats fetcher: %w", err)
	}

	statusFetcher, err := client.NewHTTPFetcher(client.Config{
		BaseURL:    cfg.StatusBaseURL,
		Name:       "status",
		UserAgent:  ua,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Logger:     &fetcherLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("status fetcher: %w", err)
	}

	coordLogger := logging.NewLogger("coordinator")
	coord, err := coordinator.New(coordinator.Config{
		Backend:  backend,
		Fetcher:  apiFetcher,
		Locker:   newLocker(cfg, "coordinator"),
		TTL:      cfg.CacheTTL,
		StaleTTL: cfg.StaleTTL,
		Logger:   &coordLogger,
	})
	if err != nil {
		return nil, err
	}

	api, err := nexusmods.NewAPIClient(coord, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	statsLogger := logging.NewLogger("statistics")
	reader, err := statistics.NewReader(statistics.Config{
		Fetcher: statsFetcher,
		Locker:  newLocker(cfg, "statistics"),
		Logger:  &statsLogger,
	})
	if err != nil {
		return nil, err
	}

	return &server{
		api:         api,
		coord:       coord,
		stats:       nexusmods.NewStatisticsClient(reader),
		status:      nexusmods.NewStatusClient(statusFetcher),
		backend:     backend,
		tracker:     tracker,
		outputCache: cache.NewMemoryBackend(),
		outputTTL:   cfg.OutputCacheTTL,
		logger:      logging.NewLogger("http"),
	}, nil
}

// routes builds the HTTP router.
func (s *server) routes(cfg Config) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestLogger(s.logger), metrics.Middleware)

	router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	router.HandleFunc("/ready", s.ready).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	badges := router.NewRoute().Subrouter()
	badges.Use(rateLimit(limiter), timeout(cfg.RequestTimeout))
	badges.HandleFunc("/mod-version", s.badge("version", s.modVersion)).Methods(http.MethodGet)
	badges.HandleFunc("/downloads", s.badge("downloads", s.downloads)).Methods(http.MethodGet)

	return router
}
