package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// localMeters projects p onto a plane tangent at origin, in meters
// (x east, y north). Good for the few kilometers of a single leg.
func localMeters(origin, p Point) orb.Point {
	const rad = math.Pi / 180
	x := (p.Lon - origin.Lon) * rad * math.Cos(origin.Lat*rad) * EarthRadius
	y := (p.Lat - origin.Lat) * rad * EarthRadius
	return orb.Point{x, y}
}

// DistanceToSegment returns the distance in meters from p to the closest
// point of the leg a-b.
func DistanceToSegment(p, a, b Point) float64 {
	pp := localMeters(a, p)
	bb := localMeters(a, b)
	return distanceToSegment(pp, orb.Point{}, bb)
}

// distanceToSegment calculates the minimum distance from a point to a line segment.
func distanceToSegment(p, a, b orb.Point) float64 {
	dx := b[0] - a[0]
	dy := b[1] - a[1]

	if dx == 0 && dy == 0 {
		return planar.Distance(p, a)
	}

	// Parameter t for the projection of p onto the line
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / (dx*dx + dy*dy)

	if t < 0 {
		return planar.Distance(p, a)
	} else if t > 1 {
		return planar.Distance(p, b)
	}

	closest := orb.Point{a[0] + t*dx, a[1] + t*dy}
	return planar.Distance(p, closest)
}
