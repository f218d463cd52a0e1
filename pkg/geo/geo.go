package geo

import (
	"math"
)

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6371000.0

// Point represents a geographic coordinate in floating point degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Distance calculates the Haversine distance between two points in meters.
func Distance(p1, p2 Point) float64 {
	dLat := (p2.Lat - p1.Lat) * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// DestinationPoint calculates the destination point from a start point, given distance (in meters) and bearing (in degrees).
func DestinationPoint(start Point, distMeters, bearing float64) Point {
	lat1 := start.Lat * (math.Pi / 180.0)
	lon1 := start.Lon * (math.Pi / 180.0)
	brng := bearing * (math.Pi / 180.0)
	angular := distMeters / EarthRadius

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angular) +
		math.Cos(lat1)*math.Sin(angular)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(angular)*math.Cos(lat1),
		math.Cos(angular)-math.Sin(lat1)*math.Sin(lat2))

	return Point{
		Lat: lat2 * (180.0 / math.Pi),
		Lon: lon2 * (180.0 / math.Pi),
	}
}

// Bearing calculates the initial bearing (forward azimuth) from p1 to p2 in degrees.
func Bearing(p1, p2 Point) float64 {
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	brng := math.Atan2(y, x)

	return math.Mod(brng*(180.0/math.Pi)+360.0, 360.0)
}

// NormalizeAngle normalizes an angle difference to the range [-180, 180].
func NormalizeAngle(angleDeg float64) float64 {
	for angleDeg > 180 {
		angleDeg -= 360
	}
	for angleDeg < -180 {
		angleDeg += 360
	}
	return angleDeg
}

// Interpolate returns the point at fraction t along the straight (degree space) line from p1 to p2.
func Interpolate(p1, p2 Point, t float64) Point {
	return Point{
		Lat: p1.Lat + (p2.Lat-p1.Lat)*t,
		Lon: p1.Lon + (p2.Lon-p1.Lon)*t,
	}
}
