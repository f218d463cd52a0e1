package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"trackback/pkg/config"
	"trackback/pkg/model"
)

// eventLog receives flight events, one line each.
var (
	eventLogMu sync.Mutex
	eventLog   io.Writer
)

// Init initializes the logging system based on configuration.
// It returns a cleanup function to close log files.
func Init(cfg *config.LogConfig) (func(), error) {
	serverHandler, serverFile, err := setupHandler(cfg.Server, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to setup server logger: %w", err)
	}
	slog.SetDefault(slog.New(serverHandler))

	closers := []io.Closer{serverFile}
	if cfg.Events.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Events.Path), 0o755); err != nil {
			serverFile.Close()
			return nil, fmt.Errorf("failed to setup event log: %w", err)
		}
		eventsFile := newRotatingFile(cfg.Events)
		closers = append(closers, eventsFile)
		SetEventLog(eventsFile)
	}

	return func() {
		SetEventLog(nil)
		for _, c := range closers {
			c.Close()
		}
	}, nil
}

// ParseLevel maps a config level name to a slog level. Unknown names are INFO.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG", "TRACE":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newRotatingFile(s config.LogSettings) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   s.Path,
		MaxSize:    s.MaxSizeMB, // MB, 0 means the lumberjack default
		MaxBackups: s.MaxBackups,
		MaxAge:     s.MaxAgeDays,
		Compress:   true,
	}
}

// setupHandler builds the file + console + capture handler for s. A nil
// console writer leaves the console out.
func setupHandler(s config.LogSettings, console io.Writer) (slog.Handler, *lumberjack.Logger, error) {
	level := ParseLevel(s.Level)
	SetTrace(strings.EqualFold(s.Level, "TRACE"))

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return nil, nil, err
	}
	file := newRotatingFile(s)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}
	handlers := []slog.Handler{slog.NewTextHandler(file, opts)}

	if console != nil {
		// Console only shows INFO and up unless the file is even stricter.
		handlers = append(handlers, slog.NewTextHandler(console, &slog.HandlerOptions{
			Level: max(level, slog.LevelInfo),
		}))
	}

	// Capture handler feeds the ground station's latest log line.
	handlers = append(handlers, slog.NewTextHandler(GlobalLogCapture, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	return &multiHandler{handlers: handlers}, file, nil
}

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

// Handle implements slog.Handler
// nolint:gocritic // r must be passed by value to implement slog.Handler
func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: newHandlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: newHandlers}
}

// SetEventLog directs flight events to w. nil disables the event log.
func SetEventLog(w io.Writer) {
	eventLogMu.Lock()
	defer eventLogMu.Unlock()
	eventLog = w
}

// FormatEvent renders an event as a single log line without the trailing newline.
// Format: [2006-01-02 15:04:05] [type] Title - Summary
func FormatEvent(event *model.FlightEvent) string {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("[%s] [%s] %s", ts.Format("2006-01-02 15:04:05"), event.Type, event.Title)
	if event.Summary != "" {
		line += " - " + event.Summary
	}
	return line
}

// LogEvent writes a flight event to the event log.
func LogEvent(event *model.FlightEvent) {
	line := FormatEvent(event)

	eventLogMu.Lock()
	w := eventLog
	if w != nil {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			slog.Error("failed to write event log", "error", err)
		}
	}
	eventLogMu.Unlock()

	// Also capture for the ground station
	_, _ = GlobalEventCapture.Write([]byte(line))
}
