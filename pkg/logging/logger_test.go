package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackback/pkg/config"
	"trackback/pkg/model"
)

func TestInit(t *testing.T) {
	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "logs", "server.log")
	eventLog := filepath.Join(tempDir, "logs", "events.log")

	cfg := &config.LogConfig{
		Server: config.LogSettings{Path: serverLog, Level: "DEBUG", MaxSizeMB: 1},
		Events: config.LogSettings{Path: eventLog},
	}

	prev := slog.Default()
	defer slog.SetDefault(prev)

	cleanup, err := Init(cfg)
	require.NoError(t, err)

	slog.Debug("recorder ready", "capacity", 256)
	LogEvent(&model.FlightEvent{Type: model.EventHome, Title: "Home set"})
	cleanup()

	content, err := os.ReadFile(serverLog)
	require.NoError(t, err)
	assert.Contains(t, string(content), "recorder ready")

	events, err := os.ReadFile(eventLog)
	require.NoError(t, err)
	assert.Contains(t, string(events), "[home] Home set")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"TRACE", slog.LevelDebug},
		{"Info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestMultiHandler_RespectsLevels(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	logger := slog.New(h).With("component", "test")

	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
	logger.Debug("fine detail")
	logger.Warn("low battery")

	assert.Contains(t, debugBuf.String(), "fine detail")
	assert.Contains(t, debugBuf.String(), "component=test")
	assert.NotContains(t, warnBuf.String(), "fine detail")
	assert.Contains(t, warnBuf.String(), "low battery")
}

func TestFormatEvent(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	line := FormatEvent(&model.FlightEvent{
		Timestamp: ts,
		Type:      model.EventReturn,
		Title:     "Return committed",
		Summary:   "path-join, 3 points removed",
	})
	assert.Equal(t, "[2024-05-01 12:30:00] [return] Return committed - path-join, 3 points removed", line)

	bare := FormatEvent(&model.FlightEvent{Timestamp: ts, Type: model.EventArrived, Title: "Home"})
	assert.False(t, strings.Contains(bare, " - "))
}

func TestLogEvent_Capture(t *testing.T) {
	var buf bytes.Buffer
	SetEventLog(&buf)
	defer SetEventLog(nil)

	LogEvent(&model.FlightEvent{Type: model.EventLoopCut, Title: "Loop removed"})
	assert.True(t, strings.HasSuffix(buf.String(), "Loop removed\n"))
	assert.Contains(t, GlobalEventCapture.GetLastLine(), "[loop_cut] Loop removed")
}

func TestLogCaptureWriter(t *testing.T) {
	w := NewLogCaptureWriter(3)
	assert.Empty(t, w.GetLastLine())
	assert.Empty(t, w.Lines(0))

	for _, s := range []string{"a\n", "b\n", "c\n", "d\n"} {
		_, _ = w.Write([]byte(s))
	}
	assert.Equal(t, "d", w.GetLastLine())
	assert.Equal(t, []string{"b", "c", "d"}, w.Lines(0))
	assert.Equal(t, []string{"c", "d"}, w.Lines(2))
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	SetTrace(false)
	Trace(logger, "hidden")
	assert.Empty(t, buf.String())

	SetTrace(true)
	defer SetTrace(false)
	assert.True(t, Tracing())
	Trace(logger, "shown", "count", 3)
	assert.Contains(t, buf.String(), "shown count=3")
}
