// Package logger is a thin package-level wrapper around log/slog.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

var (
	log      = slog.New(slog.NewTextHandler(os.Stdout, nil))
	levelVar slog.LevelVar
)

// Init configures the global logger. Production gets JSON output, everything
// else gets the text handler.
func Init(environment string) {
	InitWithLevel(environment, "info")
}

func InitWithLevel(environment, level string) {
	levelVar.Set(parseLevel(level))

	opts := &slog.HandlerOptions{Level: &levelVar}

	var h slog.Handler
	if strings.EqualFold(environment, "production") {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	log = slog.New(h)
	slog.SetDefault(log)
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

func Debug(msg string, args ...any) {
	log.Debug(msg, normalize(args)...)
}

func Info(msg string, args ...any) {
	log.Info(msg, normalize(args)...)
}

func Warn(msg string, args ...any) {
	log.Warn(msg, normalize(args)...)
}

func Error(msg string, args ...any) {
	log.Error(msg, normalize(args)...)
}

func Fatal(msg string, args ...any) {
	log.Error(msg, normalize(args)...)
	os.Exit(1)
}

// DebugContext and friends attach the request trace id when present.
func DebugContext(ctx context.Context, msg string, args ...any) {
	log.DebugContext(ctx, msg, withTrace(ctx, args)...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	log.InfoContext(ctx, msg, withTrace(ctx, args)...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	log.WarnContext(ctx, msg, withTrace(ctx, args)...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	log.ErrorContext(ctx, msg, withTrace(ctx, args)...)
}

func withTrace(ctx context.Context, args []any) []any {
	args = normalize(args)
	if tid := TraceID(ctx); tid != "" {
		args = append(args, "trace_id", tid)
	}
	return args
}

// normalize keys a bare error argument as "error" so call sites can write
// logger.Error("msg", err).
func normalize(args []any) []any {
	if len(args) == 1 {
		if err, ok := args[0].(error); ok {
			return []any{"error", err}
		}
	}
	return args
}
