package terrain

import (
	"log/slog"
	"math"

	"trackback/pkg/geo"
)

// ReturnAltitude decides how high to fly a straight leg home that was never
// flown before and so has no recorded altitude.
type ReturnAltitude struct {
	elevation ElevationGetter
	home      geo.Position

	Clearance float64 // meters above the highest terrain on the leg
	Floor     float64 // meters above home, the lowest altitude ever returned
	StepSize  float64 // sampling distance along the leg, meters
}

// NewReturnAltitude creates the policy for a flight that started at home.
func NewReturnAltitude(e ElevationGetter, home geo.Position, clearance, floor, stepSize float64) *ReturnAltitude {
	if stepSize <= 0 {
		stepSize = 250
	}
	return &ReturnAltitude{
		elevation: e,
		home:      home,
		Clearance: clearance,
		Floor:     floor,
		StepSize:  stepSize,
	}
}

// Lookup returns the altitude (cm MSL) for the straight leg from lat/lng to
// home: the highest terrain sampled along it plus Clearance, but never less
// than Floor above home. It has the shape of pathfinder.AltitudeLookup.
func (r *ReturnAltitude) Lookup(lat, lng int32) int32 {
	from := geo.Position{Lat: lat, Lng: lng}.Point()
	to := r.home.Point()

	floor := r.home.AltMeters() + r.Floor
	highest, ok := r.HighestTerrain(from, to)
	alt := floor
	if ok {
		alt = math.Max(float64(highest)+r.Clearance, floor)
	}

	slog.Debug("Return leg altitude",
		"from", geo.Position{Lat: lat, Lng: lng}, "terrain_m", highest, "terrain_known", ok, "alt_m", alt)
	return int32(math.Round(alt * 100))
}

// HighestTerrain samples the straight line from p1 to p2, both ends
// included, and returns the highest elevation found. ok is false when no
// sample could be read.
func (r *ReturnAltitude) HighestTerrain(p1, p2 geo.Point) (highest int16, ok bool) {
	if r.elevation == nil {
		return 0, false
	}

	steps := int(math.Ceil(geo.Distance(p1, p2) / r.StepSize))
	if steps < 1 {
		steps = 1
	}

	highest = math.MinInt16
	for i := 0; i <= steps; i++ {
		p := geo.Interpolate(p1, p2, float64(i)/float64(steps))
		elev, err := r.elevation.GetElevation(p.Lat, p.Lon)
		if err != nil {
			slog.Debug("Return leg elevation lookup failed", "lat", p.Lat, "lon", p.Lon, "error", err)
			continue
		}
		if elev > highest {
			highest = elev
		}
		ok = true
	}
	if !ok {
		return 0, false
	}
	return highest, true
}
