// Package obs sets up the process-wide structured logger and
// Prometheus metrics registry (the ambient "logging sink" and
// "statistics" surfaces spec.md §1 brackets out as external
// collaborators). Modeled on the teacher's
// internal/single/monitoring package.
package obs

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel is the minimum severity a logger emits.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat selects the logger's output encoding.
type LogFormat string

const (
	LogFormatJSON   LogFormat = "json"
	LogFormatPretty LogFormat = "pretty"
)

// LoggerConfig configures NewLogger.
type LoggerConfig struct {
	Level  LogLevel
	Format LogFormat
}

// NewLogger builds a zerolog.Logger with a timestamp, service name, and
// either JSON or a human-readable console encoding.
func NewLogger(cfg LoggerConfig) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Format == LogFormatPretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	return zerolog.New(out).
		With().
		Timestamp().
		Str("service", "fastsocket").
		Logger()
}

func parseLevel(l LogLevel) zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
