package api

import (
	"log/slog"
	"net/http"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"trackback/pkg/geo"
)

// lineFeature builds a LineString feature over positions; the per-vertex
// altitudes (m) go into the "altitudes" property.
func lineFeature(positions []geo.Position, role string) *geojson.Feature {
	ls := make(orb.LineString, 0, len(positions))
	alts := make([]float64, 0, len(positions))
	for _, p := range positions {
		ls = append(ls, p.Orb())
		alts = append(alts, p.AltMeters())
	}
	f := geojson.NewFeature(ls)
	f.Properties["role"] = role
	f.Properties["altitudes"] = alts
	f.Properties["count"] = len(positions)
	return f
}

func pointFeature(p geo.Position, role string) *geojson.Feature {
	f := geojson.NewFeature(p.Orb())
	f.Properties["role"] = role
	f.Properties["altitude"] = p.AltMeters()
	return f
}

func writeGeoJSON(w http.ResponseWriter, fc *geojson.FeatureCollection) {
	data, err := fc.MarshalJSON()
	if err != nil {
		slog.Error("Failed to encode GeoJSON", "error", err)
		http.Error(w, "encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if _, err := w.Write(data); err != nil {
		slog.Error("Failed to write GeoJSON response", "error", err)
	}
}
