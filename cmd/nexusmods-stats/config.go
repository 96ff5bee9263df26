package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Sternrassler/nexusmods-stats/pkg/client"
	"github.com/Sternrassler/nexusmods-stats/pkg/nexusmods"
)

// Cache backends selectable with CACHE_BACKEND.
const (
	backendRedis     = "redis"
	backendMemcached = "memcached"
	backendPostgres  = "postgres"
	backendMemory    = "memory"
)

// Config is the process configuration, read from the environment.
type Config struct {
	APIKey        string `env:"NEXUSMODS_API_KEY"`
	APIBaseURL    string `env:"NEXUSMODS_API_URL"    envDefault:"https://api.nexusmods.com/"`
	StatsBaseURL  string `env:"NEXUSMODS_STATS_URL"  envDefault:"https://staticstats.nexusmods.com/"`
	StatusBaseURL string `env:"NEXUSMODS_STATUS_URL" envDefault:"https://nexusmods.statuspage.io/"`

	CacheBackend     string        `env:"CACHE_BACKEND"        envDefault:"redis"`
	RedisURL         string        `env:"REDIS_URL"            envDefault:"localhost:6379"`
	MemcachedAddrs   string        `env:"MEMCACHED_ADDRS"      envDefault:"localhost:11211"`
	MemcachedTimeout time.Duration `env:"MEMCACHED_TIMEOUT"    envDefault:"500ms"`
	PostgresDSN      string        `env:"POSTGRES_DSN"`
	PostgresSchema   string        `env:"POSTGRES_SCHEMA"      envDefault:"cache"`
	PostgresTable    string        `env:"POSTGRES_TABLE"       envDefault:"nexusmods_cache"`
	SweepInterval    time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"30m"`

	CacheTTL       time.Duration `env:"CACHE_TTL"        envDefault:"5m"`
	StaleTTL       time.Duration `env:"STALE_TTL"        envDefault:"24h"`
	OutputCacheTTL time.Duration `env:"OUTPUT_CACHE_TTL" envDefault:"60s"`
	LockStripes    int           `env:"LOCK_STRIPES"     envDefault:"0"`

	RetryMax        int           `env:"RETRY_MAX"        envDefault:"5"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`

	Port            string        `env:"PORT"             envDefault:"8080"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT"  envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	RateLimitRPS    float64       `env:"RATE_LIMIT_RPS"   envDefault:"0"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST" envDefault:"20"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	UptimeKumaEndpoint string        `env:"UPTIME_KUMA_ENDPOINT"`
	UptimeKumaInterval time.Duration `env:"UPTIME_KUMA_INTERVAL" envDefault:"60s"`
}

// LoadConfig parses environ, or the process environment when environ is
// nil, and validates the result.
func LoadConfig(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.defaultBaseURLs()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration. A missing API key is reported as
// client.ErrMissingCredential.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: NEXUSMODS_API_KEY is not set", client.ErrMissingCredential)
	}

	switch c.CacheBackend {
	case backendRedis, backendMemcached, backendMemory:
	case backendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for CACHE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}

	if c.LockStripes < 0 {
		return fmt.Errorf("LOCK_STRIPES must not be negative")
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("RETRY_MAX must not be negative")
	}
	if c.UptimeKumaEndpoint != "" && c.UptimeKumaInterval <= 0 {
		return fmt.Errorf("UPTIME_KUMA_INTERVAL must be positive when UPTIME_KUMA_ENDPOINT is set")
	}
	if c.StaleTTL < c.CacheTTL {
		return fmt.Errorf("STALE_TTL (%s) must not be shorter than CACHE_TTL (%s)", c.StaleTTL, c.CacheTTL)
	}
	return nil
}

// defaultBaseURLs fills empty base URLs.
func (c *Config) defaultBaseURLs() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = nexusmods.DefaultAPIBaseURL
	}
	if c.StatsBaseURL == "" {
		c.StatsBaseURL = nexusmods.DefaultStatsBaseURL
	}
	if c.StatusBaseURL == "" {
		c.StatusBaseURL = nexusmods.DefaultStatusBaseURL
	}
}
