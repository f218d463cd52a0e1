package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"trackback/pkg/core"
)

const (
	streamPoll      = 250 * time.Millisecond
	streamPingEvery = 20 * time.Second
	streamWriteWait = 5 * time.Second
)

// Versioned is a source of snapshots with a change counter.
type Versioned interface {
	Version() uint64
	Snapshot() core.Snapshot
}

// StreamHandler pushes a navigator snapshot over a websocket every time the
// navigator version changes.
type StreamHandler struct {
	nav      Versioned
	upgrader websocket.Upgrader
	poll     time.Duration
}

func NewStreamHandler(nav Versioned) *StreamHandler {
	return &StreamHandler{
		nav:      nav,
		upgrader: websocket.Upgrader{EnableCompression: false},
		poll:     streamPoll,
	}
}

// HandleStream upgrades the connection and starts pushing.
// GET /api/stream
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Unable to upgrade stream websocket", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain client frames so close and pong messages are processed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	h.push(ctx, conn)
}

func (h *StreamHandler) push(ctx context.Context, conn *websocket.Conn) {
	poll := time.NewTicker(h.poll)
	defer poll.Stop()
	ping := time.NewTicker(streamPingEvery)
	defer ping.Stop()

	var sent uint64
	first := true
	for {
		if v := h.nav.Version(); first || v != sent {
			snap := h.nav.Snapshot()
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(snap); err != nil {
				slog.Debug("Stream closed", "error", err)
				return
			}
			sent = snap.Version
			first = false
		}

		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(streamWriteWait))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-poll.C:
		}
	}
}
