package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/paulmach/orb/geojson"

	"trackback/pkg/core"
	"trackback/pkg/pathfinder"
)

// Navigator is the part of core.Navigator the API drives.
type Navigator interface {
	Snapshot() core.Snapshot
	Stats() core.PathStats
	CommitReturn(ctx context.Context) (pathfinder.ReturnPlan, error)
	Reset(ctx context.Context)
}

// NavigatorHandler serves the live path and the return commands.
type NavigatorHandler struct {
	nav Navigator
}

func NewNavigatorHandler(nav Navigator) *NavigatorHandler {
	return &NavigatorHandler{nav: nav}
}

// HandlePath returns the recorded (or remaining return) path as GeoJSON:
// the line from home to tail, plus home and the current waypoint.
// GET /api/path
func (h *NavigatorHandler) HandlePath(w http.ResponseWriter, r *http.Request) {
	writeGeoJSON(w, snapshotGeoJSON(h.nav.Snapshot()))
}

func snapshotGeoJSON(s core.Snapshot) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if len(s.Path) == 0 {
		return fc
	}

	line := lineFeature(s.Path, "path")
	line.Properties["mode"] = string(s.Mode)
	line.Properties["version"] = s.Version
	if s.Plan != nil {
		line.Properties["plan"] = string(s.Plan.Kind)
	}
	fc.Append(line)

	fc.Append(pointFeature(s.Path[0], "home"))
	if s.Target != nil {
		fc.Append(pointFeature(*s.Target, "target"))
	} else {
		fc.Append(pointFeature(s.Path[len(s.Path)-1], "tail"))
	}
	return fc
}

// HandleSnapshot returns the full navigator state as JSON.
// GET /api/navigator
func (h *NavigatorHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.nav.Snapshot())
}

// HandleStats returns the recorder counters.
// GET /api/path/stats
func (h *NavigatorHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.nav.Stats())
}

// HandleReturn commits the return flight.
// POST /api/return
func (h *NavigatorHandler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	plan, err := h.nav.CommitReturn(r.Context())
	if errors.Is(err, core.ErrNotRecording) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("Return committed via API", "kind", plan.Kind)
	writeJSON(w, http.StatusOK, plan)
}

// HandleReset clears the recorder.
// POST /api/reset
func (h *NavigatorHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.nav.Reset(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
