// Package logging provides structured logging configuration using log/slog.
//
// Pipeline stages log through loggers scoped with the dataset file id, so
// every entry for one file's processing can be correlated in the run output.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
//
// Use "json" format when the run output is collected by machines;
// "text" format for reading batch runs at a terminal.
func Setup(level, format string) {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// parseLevel converts a string log level to slog.Level.
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

// ForFile returns a logger that carries the dataset file id on every entry.
//
// Usage:
//
//	log := logging.ForFile("091")
//	log.Info("substitute source selected", "path", subPath)
func ForFile(fileID string) *slog.Logger {
	return slog.Default().With("file_id", fileID)
}

// WithFields returns a logger with additional structured fields, useful for
// carrying consistent context through a multi-step operation.
//
// Usage:
//
//	runLogger := logging.WithFields("run_id", runID)
//	runLogger.Info("corpus run starting")
func WithFields(args ...any) *slog.Logger {
	return slog.Default().With(args...)
}
