package common

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record and reports itself disabled so callers skip formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger shared by every engine package.
// The engine is silent by default; passing nil restores the silent logger.
//
// Levels in use:
//   - slog.LevelDebug: buffer growth, mirror reconstruction, BVH rebuilds, traversal truncation
//   - slog.LevelInfo: lifecycle events such as GPU attach/detach and profiler statistics
//   - slog.LevelWarn: recoverable failures such as GPU resource release errors
//
// Parameters:
//   - l: the logger to install, or nil to disable logging
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the current engine logger. Safe for concurrent use.
//
// Returns:
//   - *slog.Logger: the active logger
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// ComponentLogger returns the engine logger tagged with a component attribute.
//
// Parameters:
//   - component: the component name, e.g. "buffer" or "bvh"
//
// Returns:
//   - *slog.Logger: the tagged logger
func ComponentLogger(component string) *slog.Logger {
	return Logger().With(slog.String("component", component))
}

// ParseLogLevel maps a textual level ("debug", "info", "warn", "error") to a slog.Level.
// Unknown values map to slog.LevelInfo and report false.
//
// Parameters:
//   - level: the textual level
//
// Returns:
//   - slog.Level: the parsed level
//   - bool: true if the text named a known level
func ParseLogLevel(level string) (slog.Level, bool) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, false
	}
	return l, true
}
