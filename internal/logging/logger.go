// Package logging configures structured logging with log/slog.
//
// Loggers returned by FromContext carry the chi request ID and, when the
// request was authenticated, the API client name, so every line written
// while an import runs can be traced back to the request that started it.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/JonMunkholm/xlimport/internal/core"
	"github.com/go-chi/chi/v5/middleware"
)

// Setup installs the default slog logger writing to stdout.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) *slog.Logger {
	logger := New(os.Stdout, level, format)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger writing to w without touching the default logger.
// The CLI uses it to keep log output on stderr, away from the report.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
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

// FromContext returns the default logger enriched with request context.
//
// Usage:
//
//	func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
//	    logger := logging.FromContext(r.Context())
//	    logger.Info("import requested", "profile", profileKey)
//	}
func FromContext(ctx context.Context) *slog.Logger {
	return enrich(ctx, slog.Default())
}

// WithFields returns a request logger with additional structured fields.
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}

func enrich(ctx context.Context, logger *slog.Logger) *slog.Logger {
	// Chi's RequestID middleware stores the ID in context
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if req, ok := core.RequesterFromContext(ctx); ok && req.Client != "" {
		logger = logger.With("client", req.Client)
	}
	return logger
}
