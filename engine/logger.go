// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards all log records.
// Enabled returns false so callers skip formatting
// entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically
// so SetLogger can race with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the package's logger.
// By default, no log output is produced.
// Passing nil restores the default.
//
// Levels in use:
//   - slog.LevelDebug: per-frame diagnostics.
//   - slog.LevelWarn: dropped work (capacity limits, rejected lights).
//   - slog.LevelError: failed instances and builds.
//
// It is safe for concurrent use.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger.
// It is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
