package pathfinder

import (
	"math"

	"trackback/pkg/geo"
)

const (
	// minPlannedPath is the track length (meters) below which the recorded
	// track is always flown back as is.
	minPlannedPath = 100.0
	// joinRatioBound scales the allowed trip length for a shortcut.
	joinRatioBound = 1.0
)

// AltitudeLookup returns the altitude (cm) to fly a straight, unverified leg
// starting at lat/lng. It is supplied by the terrain policy of the caller.
type AltitudeLookup func(lat, lng int32) int32

// ReturnKind tells how the return flight was shaped.
type ReturnKind string

const (
	// ReturnEmpty means there was nothing to fly: no track or only home.
	ReturnEmpty ReturnKind = "empty"
	// ReturnVerbatim retraces the recorded track.
	ReturnVerbatim ReturnKind = "verbatim"
	// ReturnPathJoin flies straight to a join point, then follows the track home.
	ReturnPathJoin ReturnKind = "path-join"
	// ReturnHomeJoin follows the track to a join point, then flies straight home.
	ReturnHomeJoin ReturnKind = "home-join"
	// ReturnDirect flies straight home.
	ReturnDirect ReturnKind = "direct"
)

// ReturnPlan describes the outcome of PrepareReturn. Distances are meters.
type ReturnPlan struct {
	Kind           ReturnKind   `json:"kind"`
	PathDistance   float64      `json:"path_distance"`
	DirectDistance float64      `json:"direct_distance"`
	MaxRatio       float64      `json:"max_ratio,omitempty"`
	TripDistance   float64      `json:"trip_distance"`
	UnsafeDistance float64      `json:"unsafe_distance"`
	Join           geo.Position `json:"join"`
	Removed        int          `json:"removed"`
}

// PrepareReturn reshapes the recorded track for the flight home. When the
// track is much longer than the direct distance it looks for the single join
// point that keeps the straight (unverified) leg as short as possible while
// the whole trip stays within the allowed ratio, and falls back to a direct
// leg home when no join point qualifies. It never fails.
func (p *Path) PrepareReturn(lookup AltitudeLookup) ReturnPlan {
	if p.count <= 1 {
		return ReturnPlan{Kind: ReturnEmpty}
	}

	homePos := p.slots[home].pos
	tailPos := p.slots[p.tail].pos
	plan := ReturnPlan{
		Kind:           ReturnVerbatim,
		DirectDistance: geo.TrackDistance(homePos, tailPos),
	}

	total := 0.0
	p.slots[p.tail].fromTail = 0
	for i := p.tail; i != home; {
		prev := p.slots[i].prev
		total += geo.TrackDistance(p.slots[i].pos, p.slots[prev].pos)
		p.slots[prev].fromTail = total
		i = prev
	}
	plan.PathDistance = total
	plan.TripDistance = total

	if total < minPlannedPath {
		return plan
	}
	km := total / 1000
	plan.MaxRatio = 1 + 10/(km*km)
	if total <= plan.DirectDistance*plan.MaxRatio {
		return plan
	}

	bound := plan.DirectDistance * plan.MaxRatio * joinRatioBound
	best := noLink
	bestKind := ReturnDirect
	bestUnsafe := math.Inf(1)
	bestTrip := 0.0

	for j := p.slots[p.tail].prev; j != home; j = p.slots[j].prev {
		s := &p.slots[j]

		unsafe := geo.TrackDistance(tailPos, s.pos)
		trip := unsafe + (total - s.fromTail)
		if trip <= bound && unsafe < bestUnsafe {
			best, bestKind, bestUnsafe, bestTrip = j, ReturnPathJoin, unsafe, trip
		}

		unsafe = geo.TrackDistance(s.pos, homePos)
		trip = s.fromTail + unsafe
		if trip <= bound && unsafe < bestUnsafe {
			best, bestKind, bestUnsafe, bestTrip = j, ReturnHomeJoin, unsafe, trip
		}
	}

	switch bestKind {
	case ReturnPathJoin:
		plan.Removed = p.spliceBetween(best, p.tail)
		p.setAltitude(p.tail, lookup(tailPos.Lat, tailPos.Lng))
		plan.Join = p.slots[best].pos
	case ReturnHomeJoin:
		plan.Removed = p.spliceBetween(home, best)
		j := p.slots[best].pos
		p.setAltitude(best, lookup(j.Lat, j.Lng))
		plan.Join = p.slots[best].pos
	default:
		plan.Removed = p.spliceBetween(home, p.tail)
		p.setAltitude(p.tail, lookup(tailPos.Lat, tailPos.Lng))
		bestUnsafe = plan.DirectDistance
		bestTrip = plan.DirectDistance
	}

	plan.Kind = bestKind
	plan.UnsafeDistance = bestUnsafe
	plan.TripDistance = bestTrip
	p.logger.Debug("Prepared return", "kind", plan.Kind, "path_m", plan.PathDistance, "direct_m", plan.DirectDistance,
		"unsafe_m", plan.UnsafeDistance, "removed", plan.Removed)
	return plan
}

// setAltitude changes the altitude of i and rescores it and its neighbors.
func (p *Path) setAltitude(i index, alt int32) {
	p.slots[i].pos.Alt = alt
	p.updateSignificance(i)
	if prev := p.slots[i].prev; prev != noLink {
		p.updateSignificance(prev)
	}
	if next := p.liveNext(i); next != noLink {
		p.updateSignificance(next)
	}
}
