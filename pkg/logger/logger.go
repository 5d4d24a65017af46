package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// New returns the JSON logger for appEnv. LOG_LEVEL (debug, info, warn, error)
// overrides the env-derived default.
func New(appEnv string) *slog.Logger {
	return NewWithWriter(os.Stdout, appEnv, os.Getenv("LOG_LEVEL"))
}

// NewWithWriter is New with an explicit sink and level, for tests.
func NewWithWriter(w io.Writer, appEnv, level string) *slog.Logger {
	lvl := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		lvl = slog.LevelDebug
	}
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(h).With("service", "leadpool-crm", "env", appEnv)
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
func From(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// Component tags background work (cron jobs, sync runs) that has no request.
func Component(ctx context.Context, name string) context.Context {
	return With(ctx, From(ctx).With("component", name))
}

// ShutdownFlush is a hook for buffered handlers; the JSON handler writes
// synchronously so there is nothing to flush.
func ShutdownFlush(_ context.Context, _ time.Duration) error { return nil }
