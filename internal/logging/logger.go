// Package logging holds the runner's two log sinks: the slog logger for
// operational records (job lifecycle, conversion, metrics server) and the
// per-job RunLog that captures raw whisper output in the run directory.
//
// Loggers built here understand ContextAttrs, so records logged with a job
// context carry its job_id without threading it through every call.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the process logger writing to stderr. format is "json"
// or "text"; level is one of debug, info, warn, error. verbose forces debug
// and adds source locations.
func NewLogger(format, level string, verbose bool) *slog.Logger {
	lvl := parseLevel(level)
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(NewContextHandler(newHandler(os.Stderr, format, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	})))
}

// NewLoggerWithWriter is NewLogger for an arbitrary writer. The CLI uses it
// to silence records while the dashboard owns the terminal; tests use it to
// capture output.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	return slog.New(NewContextHandler(newHandler(w, format, &slog.HandlerOptions{
		Level: parseLevel(level),
	})))
}

// newHandler picks the slog encoding. Anything but "json" is text.
func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// SetDefault installs logger as the slog default, so packages that log
// through slog directly share the job's handler.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
