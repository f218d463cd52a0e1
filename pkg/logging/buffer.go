package logging

import (
	"strings"
	"sync"
)

// LogCaptureWriter is a thread-safe writer that keeps the most recent lines.
type LogCaptureWriter struct {
	mu    sync.RWMutex
	lines []string
	limit int
}

// NewLogCaptureWriter keeps up to limit lines (at least one).
func NewLogCaptureWriter(limit int) *LogCaptureWriter {
	return &LogCaptureWriter{limit: max(limit, 1)}
}

// GlobalLogCapture captures server log lines for the ground station.
var GlobalLogCapture = NewLogCaptureWriter(50)

// GlobalEventCapture captures flight event lines.
var GlobalEventCapture = NewLogCaptureWriter(50)

// Write implements io.Writer. Each call is stored as one line.
func (w *LogCaptureWriter) Write(p []byte) (n int, err error) {
	line := strings.TrimRight(string(p), "\n")

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.lines) == w.limit {
		copy(w.lines, w.lines[1:])
		w.lines = w.lines[:len(w.lines)-1]
	}
	w.lines = append(w.lines, line)
	return len(p), nil
}

// GetLastLine returns the most recent line.
func (w *LogCaptureWriter) GetLastLine() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.lines) == 0 {
		return ""
	}
	return w.lines[len(w.lines)-1]
}

// Lines returns up to n of the most recent lines, oldest first.
func (w *LogCaptureWriter) Lines(n int) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if n <= 0 || n > len(w.lines) {
		n = len(w.lines)
	}
	out := make([]string, n)
	copy(out, w.lines[len(w.lines)-n:])
	return out
}
