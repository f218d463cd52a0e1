package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// trace gates per-fix debug lines. Init turns it on for the TRACE level.
var trace atomic.Bool

// SetTrace switches per-fix debug lines on or off.
func SetTrace(on bool) {
	trace.Store(on)
}

// Tracing reports whether per-fix debug lines are on.
func Tracing() bool {
	return trace.Load()
}

// Trace logs msg at DEBUG on logger when tracing is on.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if trace.Load() {
		logger.Log(context.Background(), slog.LevelDebug, msg, args...)
	}
}

// TraceDefault is Trace on the default logger.
func TraceDefault(msg string, args ...any) {
	Trace(slog.Default(), msg, args...)
}
