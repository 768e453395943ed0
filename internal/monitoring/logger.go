// Package monitoring - logger.go provides structured logging via zerolog.
//
// DESIGN: Thin wrapper around zerolog with:
//   - Configurable level, format (json/console), output (stdout/stderr/file)
//   - Global() sets the default logger for the entire application
//   - Run ID context helpers so nested stages can tag their log lines
package monitoring

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Context keys for run tracking.
type contextKey string

const RunIDKey contextKey = "run_id"

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"log_level"`  // debug, info, warn, error
	Format string `yaml:"log_format"` // json, console
	Output string `yaml:"log_output"` // stdout, stderr, or file path
}

// DefaultLoggerConfig logs info and above to stderr in console format,
// leaving stdout to the report.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{Level: "info", Format: "console", Output: "stderr"}
}

// Validate checks level and format.
func (c LoggerConfig) Validate() error {
	if c.Level != "" {
		if _, err := zerolog.ParseLevel(c.Level); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	switch c.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", c.Format)
	}
	return nil
}

// Logger wraps zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

// New creates a new Logger with the given configuration.
func New(cfg LoggerConfig) *Logger {
	return newWithWriter(cfg, nil)
}

func newWithWriter(cfg LoggerConfig, w io.Writer) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	writer := w
	if writer == nil {
		switch cfg.Output {
		case "stderr", "":
			writer = os.Stderr
		case "stdout":
			writer = os.Stdout
		default:
			f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
			if err != nil {
				writer = os.Stderr
			} else {
				writer = f
			}
		}
	}

	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05", NoColor: w != nil}
	}

	zl := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// NewWithWriter creates a Logger that writes to w, ignoring cfg.Output.
func NewWithWriter(cfg LoggerConfig, w io.Writer) *Logger {
	return newWithWriter(cfg, w)
}

// Global sets the global zerolog logger.
func Global(cfg LoggerConfig) {
	logger := New(cfg)
	log.Logger = logger.zl
}

// Zerolog returns the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

// Debug returns a debug event.
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }

// Info returns an info event.
func (l *Logger) Info() *zerolog.Event { return l.zl.Info() }

// Warn returns a warn event.
func (l *Logger) Warn() *zerolog.Event { return l.zl.Warn() }

// Error returns an error event.
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// RunIDFromContext retrieves the run ID from context.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRunIDContext returns a new context with the run ID.
func WithRunIDContext(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// FromContext returns the global logger tagged with the context's run ID.
func FromContext(ctx context.Context) zerolog.Logger {
	if id := RunIDFromContext(ctx); id != "" {
		return log.With().Str("run_id", id).Logger()
	}
	return log.Logger
}
