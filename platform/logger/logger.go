// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// SweepIDKey is the context key for the dispatch sweep run ID
	SweepIDKey contextKey = "sweep_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter creates a logger that writes to w. Used by the CLI and tests.
func NewWithWriter(env string, w io.Writer) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithContext returns a logger with context values extracted.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if sweepID, ok := ctx.Value(SweepIDKey).(string); ok && sweepID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("sweep_id", sweepID))}
	}

	return newLogger
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// DatabaseError logs a failed store operation. args are extra key/value
// pairs such as the row id.
func (l *Logger) DatabaseError(operation string, err error, args ...any) {
	attrs := append([]any{
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	}, args...)
	l.Error("database_error", attrs...)
}

// SweepCompleted logs the outcome of one dispatch tick.
func (l *Logger) SweepCompleted(sent, failed, conflicts, released int, skipped bool, elapsed time.Duration) {
	l.Info("sweep_completed",
		slog.Int("sent", sent),
		slog.Int("failed", failed),
		slog.Int("cas_conflicts", conflicts),
		slog.Int("released", released),
		slog.Bool("skipped", skipped),
		slog.Duration("elapsed", elapsed),
	)
}

// DeliveryFailed logs a failed follow-up delivery attempt.
func (l *Logger) DeliveryFailed(eventID, channel string, attempt int, terminal bool, reason string) {
	l.Warn("delivery_failed",
		slog.String("event_id", eventID),
		slog.String("channel", channel),
		slog.Int("attempt", attempt),
		slog.Bool("terminal", terminal),
		slog.String("reason", reason),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
