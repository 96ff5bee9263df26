// Package logging configures the process-wide zerolog logger.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"

	// LevelDisabled turns logging off.
	LevelDisabled LogLevel = "disabled"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Service, if set, is added to every record as "service".
	Service string

	// Version, if set, is added to every record as "version".
	Version string

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Pretty:  false,
		Service: "nexusmods-stats",
		Output:  os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	builder := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		builder = builder.Str("service", cfg.Service)
	}
	if cfg.Version != "" {
		builder = builder.Str("version", cfg.Version)
	}
	logger := builder.Logger()

	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger

	return logger
}

// ParseLevel converts LogLevel to zerolog.Level. Unknown levels map to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// FromContext returns the request logger stored in ctx, or the global
// logger when there is none.
func FromContext(ctx context.Context) *zerolog.Logger {
	if logger := zerolog.Ctx(ctx); logger != nil && logger.GetLevel() != zerolog.Disabled {
		return logger
	}
	return &log.Logger
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache reads and writes (key, backend)
//   - Upstream request flow (path, status)
//   - Lock waits aborted by cancellation
//
// Info: Normal operation events
//   - Server startup/shutdown
//   - Cache backend selection and schema setup
//
// Warn: Degraded operation the caller does not see
//   - Stale values served after an upstream failure
//   - Cache backend errors (treated as misses)
//   - Undecodable cache entries (removed)
//   - Exhausted rate limit windows
//
// Error: Error conditions requiring attention
//   - Malformed live statistics rows
//   - Transport failures with nothing to fall back to
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package
//   - key: cache key (credential fingerprint, never the raw key)
//   - path: upstream resource path
//   - source: live statistics source key (game id)
//   - status: HTTP status code
//   - error_class: transport, status, decode, cache, config, canceled
//   - request_id: inbound request correlation id
