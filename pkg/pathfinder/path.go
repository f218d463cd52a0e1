// Package pathfinder records a vehicle's outbound ground track in a fixed
// pool of points, simplifies it online so it never outgrows the pool, cuts
// loops out of the track as they happen and plans the return flight home.
//
// A Path is not safe for concurrent use. It performs no allocation after New
// except in the diagnostic helpers Positions and LineString.
package pathfinder

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/paulmach/orb"

	"trackback/pkg/geo"
)

var (
	// ErrInvalidCapacity is returned for a pool smaller than two points.
	ErrInvalidCapacity = errors.New("path capacity must be at least 2")
	// ErrInvalidThreshold is returned for a non-positive or non-finite threshold.
	ErrInvalidThreshold = errors.New("initial threshold must be a positive number")
	// ErrInvalidGrowthFactor is returned for a growth factor not strictly above 1.
	ErrInvalidGrowthFactor = errors.New("threshold growth factor must be greater than 1")
)

const (
	DefaultCapacity         = 256
	DefaultInitialThreshold = 20.0
	DefaultGrowthFactor     = 1.2
)

// index addresses a slot in the pool.
type index int32

const (
	// noLink marks a missing neighbor.
	noLink index = -1
	// home is the slot of the first recorded point. Nothing but a full reset
	// ever removes it, so it never moves.
	home index = 0
)

type slot struct {
	pos          geo.Position
	significance float64
	// fromTail is scratch space for the return planner: distance along the
	// recorded track from the tail to this point.
	fromTail float64
	prev     index
	next     index
}

// Config holds the tunables of a Path.
type Config struct {
	Capacity         int
	InitialThreshold float64
	GrowthFactor     float64
}

// DefaultConfig returns the default pool size and thresholds.
func DefaultConfig() Config {
	return Config{
		Capacity:         DefaultCapacity,
		InitialThreshold: DefaultInitialThreshold,
		GrowthFactor:     DefaultGrowthFactor,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Capacity < 2 {
		return fmt.Errorf("%w: got %d", ErrInvalidCapacity, c.Capacity)
	}
	if err := validateThreshold(c.InitialThreshold); err != nil {
		return err
	}
	return validateGrowthFactor(c.GrowthFactor)
}

func validateThreshold(v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, v)
	}
	return nil
}

func validateGrowthFactor(v float64) error {
	if !(v > 1) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidGrowthFactor, v)
	}
	return nil
}

// Stats counts what the engine did since the last Reset.
type Stats struct {
	Added         int `json:"added"`
	Absorbed      int `json:"absorbed"`
	Pruned        int `json:"pruned"`
	PruneRounds   int `json:"prune_rounds"`
	LoopCuts      int `json:"loop_cuts"`
	LoopDiscarded int `json:"loop_discarded"`
	Spliced       int `json:"spliced"`
}

// Path is the fixed-capacity track recorder.
//
// All slots form a single doubly linked list starting at slot 0. The first
// count nodes are the recorded track; the nodes after the tail are the free
// pool, so the free cursor is always the tail's next link.
type Path struct {
	slots  []slot
	free   index
	tail   index
	count  int
	stats  Stats
	logger *slog.Logger

	initialThreshold float64
	currentThreshold float64
	growthFactor     float64
}

// New allocates a Path. A nil logger discards engine logs.
func New(cfg Config, logger *slog.Logger) (*Path, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Path{
		slots:            make([]slot, cfg.Capacity),
		logger:           logger,
		initialThreshold: cfg.InitialThreshold,
		growthFactor:     cfg.GrowthFactor,
	}
	p.Reset()
	return p, nil
}

// Reset forgets the recorded track, relinks the whole pool as free slots and
// restores the initial threshold.
func (p *Path) Reset() {
	last := len(p.slots) - 1
	for i := range p.slots {
		p.slots[i] = slot{prev: index(i - 1), next: index(i + 1)}
	}
	p.slots[last].next = noLink

	p.free = home
	p.tail = noLink
	p.count = 0
	p.currentThreshold = p.initialThreshold
	p.stats = Stats{}
}

// Count returns the number of recorded points.
func (p *Path) Count() int {
	return p.count
}

// Capacity returns the size of the pool.
func (p *Path) Capacity() int {
	return len(p.slots)
}

// Stats returns the engine counters.
func (p *Path) Stats() Stats {
	return p.stats
}

// InitialThreshold returns the significance cutoff a fresh track starts with.
func (p *Path) InitialThreshold() float64 {
	return p.initialThreshold
}

// SetInitialThreshold changes the starting cutoff. The current cutoff is
// raised with it if it would otherwise fall below the new value.
func (p *Path) SetInitialThreshold(v float64) error {
	if err := validateThreshold(v); err != nil {
		return err
	}
	p.initialThreshold = v
	if p.currentThreshold < v {
		p.currentThreshold = v
	}
	return nil
}

// GrowthFactor returns the multiplier applied to the cutoff on each prune round.
func (p *Path) GrowthFactor() float64 {
	return p.growthFactor
}

// SetGrowthFactor changes the prune multiplier.
func (p *Path) SetGrowthFactor(v float64) error {
	if err := validateGrowthFactor(v); err != nil {
		return err
	}
	p.growthFactor = v
	return nil
}

// CurrentThreshold returns the cutoff in effect.
func (p *Path) CurrentThreshold() float64 {
	return p.currentThreshold
}

// ForEach visits the recorded points from home to the tail.
func (p *Path) ForEach(fn func(n int, pos geo.Position)) {
	i := home
	for n := 0; n < p.count; n++ {
		fn(n, p.slots[i].pos)
		i = p.slots[i].next
	}
}

// PointAt returns the n-th recorded point, home being 0.
func (p *Path) PointAt(n int) (geo.Position, bool) {
	if n < 0 || n >= p.count {
		return geo.Position{}, false
	}
	i := home
	for ; n > 0; n-- {
		i = p.slots[i].next
	}
	return p.slots[i].pos, true
}

// Home returns the first recorded point.
func (p *Path) Home() (geo.Position, bool) {
	return p.PointAt(0)
}

// Tail returns the most recent point.
func (p *Path) Tail() (geo.Position, bool) {
	if p.count == 0 {
		return geo.Position{}, false
	}
	return p.slots[p.tail].pos, true
}

// Pop removes and returns the tail. Emptying the track resets the pool but
// keeps the engine counters of the flight; only Reset clears them.
func (p *Path) Pop() (geo.Position, bool) {
	if p.count == 0 {
		return geo.Position{}, false
	}
	t := p.tail
	pos := p.slots[t].pos
	if p.count == 1 {
		stats := p.stats
		p.Reset()
		p.stats = stats
		return pos, true
	}
	p.tail = p.slots[t].prev
	p.free = t
	p.count--
	return pos, true
}

// Positions copies the recorded track.
func (p *Path) Positions() []geo.Position {
	out := make([]geo.Position, 0, p.count)
	p.ForEach(func(_ int, pos geo.Position) {
		out = append(out, pos)
	})
	return out
}

// LineString exports the recorded track in degrees.
func (p *Path) LineString() orb.LineString {
	return geo.LineString(p.Positions())
}

// liveNext is the next recorded point, or noLink for the tail.
func (p *Path) liveNext(i index) index {
	if i == p.tail {
		return noLink
	}
	return p.slots[i].next
}

// appendTail writes pos into the free cursor and makes it the tail.
func (p *Path) appendTail(pos geo.Position) {
	i := p.free
	s := &p.slots[i]
	s.pos = pos
	s.significance = 0
	p.tail = i
	p.free = s.next
	p.count++
}

// release unlinks the interior point i and parks it right after the tail,
// where it becomes the free cursor.
func (p *Path) release(i index) {
	s := &p.slots[i]
	p.slots[s.prev].next = s.next
	p.slots[s.next].prev = s.prev

	t := &p.slots[p.tail]
	f := t.next
	s.prev = p.tail
	s.next = f
	if f != noLink {
		p.slots[f].prev = i
	}
	t.next = i
	p.free = i
	p.count--
}

// truncate makes i the tail, returning the removed run to the pool. The run
// already sits between i and the old free cursor, so only the cursors move.
func (p *Path) truncate(i index, removed int) {
	p.tail = i
	p.free = p.slots[i].next
	p.count -= removed
}

// spliceBetween releases every point strictly between a and b.
func (p *Path) spliceBetween(a, b index) int {
	removed := 0
	for i := p.slots[a].next; i != b; {
		next := p.slots[i].next
		p.release(i)
		removed++
		i = next
	}
	p.updateSignificance(a)
	p.updateSignificance(b)
	p.stats.Spliced += removed
	return removed
}
