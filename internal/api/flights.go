package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"trackback/pkg/model"
	"trackback/pkg/store"
)

const defaultFlightLimit = 50

// FlightHandler serves the flight log.
type FlightHandler struct {
	store store.FlightStore
}

// NewFlightHandler returns nil without a store.
func NewFlightHandler(st store.FlightStore) *FlightHandler {
	if st == nil {
		return nil
	}
	return &FlightHandler{store: st}
}

// HandleList returns the newest flights.
// GET /api/flights?limit=N
func (h *FlightHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultFlightLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	flights, err := h.store.ListFlights(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list flights", "error", err)
		http.Error(w, "failed to list flights", http.StatusInternalServerError)
		return
	}
	if flights == nil {
		flights = []*model.Flight{}
	}
	writeJSON(w, http.StatusOK, flights)
}

// HandleGet returns one flight.
// GET /api/flights/{id}
func (h *FlightHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// HandleEvents returns the flight's events, oldest first.
// GET /api/flights/{id}/events
func (h *FlightHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	events, err := h.store.ListEvents(r.Context(), f.ID)
	if err != nil {
		slog.Error("Failed to list events", "flight", f.ID, "error", err)
		http.Error(w, "failed to list events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*model.FlightEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// HandlePath returns a saved path snapshot as GeoJSON.
// GET /api/flights/{id}/path/{kind}
func (h *FlightHandler) HandlePath(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	if kind != model.PathOutbound && kind != model.PathReturn {
		http.Error(w, "unknown path kind", http.StatusBadRequest)
		return
	}
	f, ok := h.lookup(w, r)
	if !ok {
		return
	}
	points, err := h.store.GetPath(r.Context(), f.ID, kind)
	if err != nil {
		slog.Error("Failed to load path", "flight", f.ID, "kind", kind, "error", err)
		http.Error(w, "failed to load path", http.StatusInternalServerError)
		return
	}
	if points == nil {
		http.Error(w, "path not found", http.StatusNotFound)
		return
	}

	fc := geojson.NewFeatureCollection()
	line := lineFeature(points, kind)
	line.Properties["flight_id"] = f.ID
	fc.Append(line)
	fc.Append(pointFeature(f.Home, "home"))
	writeGeoJSON(w, fc)
}

func (h *FlightHandler) lookup(w http.ResponseWriter, r *http.Request) (*model.Flight, bool) {
	id := r.PathValue("id")
	f, err := h.store.GetFlight(r.Context(), id)
	if err != nil {
		slog.Error("Failed to load flight", "flight", id, "error", err)
		http.Error(w, "failed to load flight", http.StatusInternalServerError)
		return nil, false
	}
	if f == nil {
		http.Error(w, "flight not found", http.StatusNotFound)
		return nil, false
	}
	return f, true
}
