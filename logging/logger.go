// Package logging wraps log/slog with a process-wide logger that writes
// text to the console and JSON to weekly rotating files.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Options configures the global logger.
type Options struct {
	Dir            string // empty logs to the console only
	Level          string // debug, info, warn or error
	RetentionWeeks int
	MaxFileSize    int64
}

type service struct {
	logger *slog.Logger
	closer io.Closer
}

var current atomic.Pointer[service]

// ParseLevel maps a LOG_LEVEL value to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// Init replaces the global logger. When the log directory cannot be used
// the logger falls back to the console and the error is returned.
func Init(opts Options) error {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}
	if opts.RetentionWeeks <= 0 {
		opts.RetentionWeeks = 4
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	console := slog.NewTextHandler(os.Stdout, handlerOpts)

	svc := &service{logger: slog.New(console)}
	var setupErr error
	if opts.Dir != "" {
		rw, err := NewRotatingWriter(opts.Dir, opts.RetentionWeeks, opts.MaxFileSize)
		if err != nil {
			setupErr = fmt.Errorf("file logging disabled: %w", err)
		} else {
			svc.logger = slog.New(&multiHandler{handlers: []slog.Handler{
				console,
				slog.NewJSONHandler(rw, handlerOpts),
			}})
			svc.closer = rw
		}
	}

	if prev := current.Swap(svc); prev != nil && prev.closer != nil {
		_ = prev.closer.Close()
	}
	slog.SetDefault(svc.logger)

	if setupErr != nil {
		svc.logger.Error("Failed to initialize rotating logger", "error", setupErr)
	}
	return setupErr
}

// InitLogger initializes the global logger at info level.
func InitLogger(logDir string) {
	_ = Init(Options{Dir: logDir, Level: "info"})
}

// Close flushes and closes the log file, keeping a console logger.
func Close() error {
	prev := current.Swap(nil)
	if prev == nil || prev.closer == nil {
		return nil
	}
	return prev.closer.Close()
}

// Logger returns the global logger, or a stderr logger when none is set.
func Logger() *slog.Logger {
	if svc := current.Load(); svc != nil {
		return svc.logger
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func Info(msg string, args ...any)  { Logger().Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger().Warn(msg, args...) }
func Error(msg string, args ...any) { Logger().Error(msg, args...) }
func Debug(msg string, args ...any) { Logger().Debug(msg, args...) }

// multiHandler fans a record out to several handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
