package pathfinder

import (
	"math"

	"trackback/pkg/geo"
)

// degenerateBase is the neighbor distance (meters) below which a triangle is
// treated as collapsed and significance falls back to the squared distance.
const degenerateBase = 1e-6

// Add records a new fix. It never fails: when the pool is full the track is
// coarsened until a slot frees up.
func (p *Path) Add(lat, lng, alt int32) {
	pos := geo.Position{Lat: lat, Lng: lng, Alt: alt}
	p.stats.Added++

	if p.free == noLink && !p.prune() {
		// Only home and tail exist (capacity 2): the tail follows the vehicle.
		p.slots[p.tail].pos = pos
		p.stats.Absorbed++
		return
	}

	if p.count >= 2 {
		t := p.tail
		prev := p.slots[t].prev
		sig := significance(p.slots[prev].pos, p.slots[t].pos, pos)
		p.slots[t].significance = sig

		if sig < p.currentThreshold {
			// The old tail adds nothing: it takes over the new fix in place.
			p.slots[t].pos = pos
			p.slots[t].significance = 0
			p.updateSignificance(prev)
			p.stats.Absorbed++
			p.cutLoop()
			return
		}
	}

	p.appendTail(pos)
	p.cutLoop()
}

// updateSignificance rescores an interior point against its live neighbors.
// Home and tail have no score.
func (p *Path) updateSignificance(i index) {
	s := &p.slots[i]
	next := p.liveNext(i)
	if s.prev == noLink || next == noLink {
		return
	}
	s.significance = significance(p.slots[s.prev].pos, s.pos, p.slots[next].pos)
}

// significance scores how much the track would lose without c, given its
// neighbors prev and next. It is Heron's radicand s(s-a)(s-b)(s-c), the
// squared area of the triangle, which grows with c's offset from the line
// prev-next. No square root is taken for the score itself. When prev and
// next coincide the squared distance from c to them is used instead.
func significance(prev, c, next geo.Position) float64 {
	cp := geo.TrackDistance(c, prev)
	cn := geo.TrackDistance(c, next)
	pn := geo.TrackDistance(prev, next)

	if pn < degenerateBase {
		return cp * cp
	}

	s := (cp + cn + pn) / 2
	area2 := s * (s - cp) * (s - cn) * (s - pn)
	return math.Max(area2, 0)
}

// prune raises the threshold and sweeps the track until at least one point
// is freed. It reports false when there is no interior point to remove.
func (p *Path) prune() bool {
	if p.count <= 2 {
		return false
	}

	removed := 0
	for removed == 0 {
		p.currentThreshold *= p.growthFactor
		p.stats.PruneRounds++

		for i := p.slots[home].next; i != p.tail; {
			next := p.slots[i].next
			if p.slots[i].significance < p.currentThreshold {
				prev := p.slots[i].prev
				p.release(i)
				removed++
				p.updateSignificance(prev)
				p.updateSignificance(next)
			}
			i = next
		}
	}

	p.stats.Pruned += removed
	p.logger.Debug("Pruned track", "removed", removed, "threshold", p.currentThreshold, "count", p.count)
	return true
}

// cutLoop looks for an earlier segment crossed by the newest one. On the
// first hit the crossed point moves to the intersection, everything after it
// is dropped and the threshold starts over.
func (p *Path) cutLoop() {
	if p.count < 4 {
		return
	}

	t := p.tail
	a0 := p.slots[t].pos.Planar()
	a1 := p.slots[p.slots[t].prev].pos.Planar()

	// tail-1 to tail-2 shares a vertex with the newest segment, start one further back.
	n := p.count - 3
	for cur := p.slots[p.slots[t].prev].prev; cur != home; cur = p.slots[cur].prev {
		prev := p.slots[cur].prev
		hit, ok := geo.SegmentIntersection(a0, a1, p.slots[cur].pos.Planar(), p.slots[prev].pos.Planar())
		if ok {
			p.slots[cur].pos = geo.Position{
				Lat: int32(math.Round(hit[1])),
				Lng: int32(math.Round(hit[0])),
				Alt: p.slots[prev].pos.Alt,
			}
			discarded := p.count - (n + 1)
			p.truncate(cur, discarded)
			p.updateSignificance(prev)
			p.currentThreshold = p.initialThreshold

			p.stats.LoopCuts++
			p.stats.LoopDiscarded += discarded
			p.logger.Debug("Cut track loop", "at", p.slots[cur].pos, "discarded", discarded, "count", p.count)
			return
		}
		n--
	}
}
