// Package logging provides structured logging configuration using zerolog.
package logging

import (
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

	// LevelDisabled turns logging off entirely.
	LevelDisabled LogLevel = "disabled"
)

// Valid reports whether l names a known level. Empty means the default.
func (l LogLevel) Valid() bool {
	switch LogLevel(strings.ToLower(string(l))) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelDisabled, "":
		return true
	}
	return false
}

// Component names used with NewLogger.
const (
	ComponentClient    = "team-client"
	ComponentRateLimit = "ratelimit"
	ComponentCache     = "metadata-cache"
	ComponentAggregate = "aggregate"
	ComponentExport    = "export"
	ComponentTeam      = "team"
	ComponentCLI       = "cli"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	level := ParseLevel(string(cfg.Level))
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to a zerolog.Level. Unknown names map to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
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

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Individual API calls (endpoint, select-user, attempt)
//   - Page boundaries (page number, item count, has_more)
//   - Cache hit/miss for document metadata
//
// Info: Normal operation events
//   - Aggregation run start/completion (run_id, pages, items)
//   - CSV export written
//   - Provisioning results
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts, rate-limit cooldowns
//   - Soft item errors during enrichment
//   - Cache errors (fallback to direct request)
//
// Error: Error conditions requiring attention
//   - Failed aggregation runs
//   - Requests failed after retries
//   - Configuration errors
//
// Context Fields:
//   - endpoint: API endpoint (e.g. "team/members/list")
//   - status: HTTP status code
//   - error_class: client, server, rate_limit, network
//   - run_id: aggregation run identifier
//   - page: page number within a run
//   - member_id: team member the call acts as
