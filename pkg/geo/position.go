package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// CoordScale converts degrees to the fixed-point representation used by Position.
const CoordScale = 1e7

// Position is a fixed-point fix: latitude and longitude in degrees x 1e7,
// altitude in centimeters.
type Position struct {
	Lat int32 `json:"lat"`
	Lng int32 `json:"lng"`
	Alt int32 `json:"alt"`
}

// FromDegrees builds a Position from floating point degrees and meters.
func FromDegrees(lat, lon, altMeters float64) Position {
	return Position{
		Lat: int32(math.Round(lat * CoordScale)),
		Lng: int32(math.Round(lon * CoordScale)),
		Alt: int32(math.Round(altMeters * 100)),
	}
}

// Point returns the horizontal part of p in floating point degrees.
func (p Position) Point() Point {
	return Point{Lat: float64(p.Lat) / CoordScale, Lon: float64(p.Lng) / CoordScale}
}

// AltMeters returns the altitude in meters.
func (p Position) AltMeters() float64 {
	return float64(p.Alt) / 100
}

// Orb returns p as a lon/lat orb.Point in degrees, suitable for GeoJSON.
func (p Position) Orb() orb.Point {
	return orb.Point{float64(p.Lng) / CoordScale, float64(p.Lat) / CoordScale}
}

// Planar returns p in raw fixed-point units (x = lng, y = lat).
// Intersections are computed in this space so results round back exactly.
func (p Position) Planar() orb.Point {
	return orb.Point{float64(p.Lng), float64(p.Lat)}
}

func (p Position) String() string {
	return fmt.Sprintf("(%.7f, %.7f, %.2fm)", float64(p.Lat)/CoordScale, float64(p.Lng)/CoordScale, p.AltMeters())
}

// TrackDistance returns the distance in meters between two fixes: an
// equirectangular projection at the mean latitude for the horizontal part
// plus the absolute altitude difference, added linearly.
func TrackDistance(p, q Position) float64 {
	const rad = math.Pi / 180.0 / CoordScale

	meanLat := (float64(p.Lat) + float64(q.Lat)) / 2 * rad
	x := (float64(q.Lng) - float64(p.Lng)) * rad * math.Cos(meanLat)
	y := (float64(q.Lat) - float64(p.Lat)) * rad
	horizontal := math.Sqrt(x*x+y*y) * EarthRadius

	dAlt := math.Abs(float64(q.Alt)-float64(p.Alt)) / 100
	return horizontal + dAlt
}

// SegmentIntersection returns the intersection of segments p0-p1 and p2-p3.
// A hit is reported only when both segment parameters lie in [0, 1].
// Parallel and collinear segments (zero denominator) never intersect, even
// when they overlap.
func SegmentIntersection(p0, p1, p2, p3 orb.Point) (orb.Point, bool) {
	s1x, s1y := p1[0]-p0[0], p1[1]-p0[1]
	s2x, s2y := p3[0]-p2[0], p3[1]-p2[1]

	denom := -s2x*s1y + s1x*s2y
	if denom == 0 {
		return orb.Point{}, false
	}

	dx, dy := p0[0]-p2[0], p0[1]-p2[1]
	s := (-s1y*dx + s1x*dy) / denom
	t := (s2x*dy - s2y*dx) / denom

	if s < 0 || s > 1 || t < 0 || t > 1 {
		return orb.Point{}, false
	}

	return orb.Point{p0[0] + t*s1x, p0[1] + t*s1y}, true
}

// LineString converts a sequence of fixes into an orb.LineString in degrees.
func LineString(positions []Position) orb.LineString {
	ls := make(orb.LineString, 0, len(positions))
	for _, p := range positions {
		ls = append(ls, p.Orb())
	}
	return ls
}
