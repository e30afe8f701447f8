package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	ClientIPKey  ContextKey = "client_ip"
)

type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a slog logger writing to w.
func New(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// Init installs the process-wide default logger on stdout.
func Init(cfg *Config) {
	slog.SetDefault(New(cfg, os.Stdout))
}

// WithContext returns the default logger annotated with the request values
// found in ctx.
func WithContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		logger = logger.With("request_id", requestID)
	}
	if clientIP, ok := ctx.Value(ClientIPKey).(string); ok && clientIP != "" {
		logger = logger.With("client_ip", clientIP)
	}

	return logger
}

func Info(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

func Debug(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}

func Warn(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}

func Error(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}
