package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger creates a slog.Logger writing to outW in the requested format.
// When file is set, records are also written as JSON to a rotated log file,
// whatever the console format. It does not set the global logger. The
// returned function releases the log file.
func newLogger(levelStr, formatStr, file string, outW io.Writer) (*slog.Logger, func() error) {
	level := parseLevel(levelStr)

	var console slog.Handler
	switch formatStr {
	case "json":
		console = slog.NewJSONHandler(outW, &slog.HandlerOptions{Level: level})
	case "pretty":
		console = tint.NewHandler(outW, &tint.Options{Level: level, TimeFormat: time.Kitchen})
	default:
		console = slog.NewTextHandler(outW, &slog.HandlerOptions{Level: level})
	}

	if file == "" {
		return slog.New(console), func() error { return nil }
	}

	rotated := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    5,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	toFile := slog.NewJSONHandler(rotated, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(fanout{console, toFile}), rotated.Close
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

// fanout sends every record to all handlers that accept its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
