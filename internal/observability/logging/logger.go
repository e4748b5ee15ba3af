package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewJSONLogger is the logger used by long-running services.
func NewJSONLogger(service, level string) *slog.Logger {
	return newLogger(os.Stdout, service, level, true)
}

// NewConsoleLogger writes human-readable records to w. The CLI uses it on
// stderr so that stdout only carries results.
func NewConsoleLogger(w io.Writer, service, level string) *slog.Logger {
	return newLogger(w, service, level, false)
}

func newLogger(w io.Writer, service, level string, jsonFormat bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", service)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
