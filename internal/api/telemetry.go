package api

import (
	"net/http"
	"sync"
	"time"

	"trackback/pkg/geo"
	"trackback/pkg/sim"
)

// TelemetryResponse is the latest fix as the recorder sees it.
type TelemetryResponse struct {
	sim.Telemetry
	Position geo.Position `json:"position"`
	SimState string       `json:"sim_state"`
	// AgeMS is the time since the last fix, -1 before the first one.
	AgeMS int64 `json:"age_ms"`
}

// TelemetryHandler keeps the most recent fix for the ground station. It is
// fed by the scheduler as a core.TelemetrySink.
type TelemetryHandler struct {
	mu        sync.RWMutex
	telemetry sim.Telemetry
	received  time.Time
	simState  sim.State
	now       func() time.Time
}

func NewTelemetryHandler() *TelemetryHandler {
	return &TelemetryHandler{simState: sim.StateDisconnected, now: time.Now}
}

// Update implements core.TelemetrySink.
func (h *TelemetryHandler) Update(t *sim.Telemetry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.telemetry = *t
	h.received = h.now()
}

// UpdateState implements core.TelemetrySink.
func (h *TelemetryHandler) UpdateState(s sim.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.simState = s
}

func (h *TelemetryHandler) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	resp := TelemetryResponse{
		Telemetry: h.telemetry,
		Position:  h.telemetry.Position(),
		SimState:  string(h.simState),
		AgeMS:     -1,
	}
	if !h.received.IsZero() {
		resp.AgeMS = h.now().Sub(h.received).Milliseconds()
	}
	h.mu.RUnlock()

	writeJSON(w, http.StatusOK, resp)
}
