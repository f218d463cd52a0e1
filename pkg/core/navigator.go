package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trackback/pkg/config"
	"trackback/pkg/geo"
	"trackback/pkg/logging"
	"trackback/pkg/model"
	"trackback/pkg/pathfinder"
	"trackback/pkg/sim"
	"trackback/pkg/store"
	"trackback/pkg/terrain"
)

// ErrNotRecording is returned when a return is requested without an
// outbound track being recorded.
var ErrNotRecording = errors.New("navigator is not recording")

// Mode is the navigator's position in the flight lifecycle.
type Mode string

const (
	ModeIdle      Mode = "idle"      // waiting for the first fix
	ModeRecording Mode = "recording" // outbound, fixes feed the path
	ModeReturning Mode = "returning" // flying the planned path home
	ModeHome      Mode = "home"      // back at the first fix
)

// Snapshot is a consistent copy of the navigator state.
type Snapshot struct {
	Mode     Mode                   `json:"mode"`
	Flight   *model.Flight          `json:"flight,omitempty"`
	Path     []geo.Position         `json:"path"`
	Target   *geo.Position          `json:"target,omitempty"`
	Plan     *pathfinder.ReturnPlan `json:"plan,omitempty"`
	OffTrack float64                `json:"off_track"` // meters from the current leg
	Version  uint64                 `json:"version"`
}

// PathStats describes the recorder.
type PathStats struct {
	Mode             Mode             `json:"mode"`
	Count            int              `json:"count"`
	Capacity         int              `json:"capacity"`
	InitialThreshold float64          `json:"initial_threshold"`
	CurrentThreshold float64          `json:"current_threshold"`
	GrowthFactor     float64          `json:"growth_factor"`
	Engine           pathfinder.Stats `json:"engine"`
}

// Navigator owns the recorded path for one flight at a time: it records
// outbound fixes, plans the return and steers the vehicle home waypoint by
// waypoint. All methods are safe for concurrent use.
type Navigator struct {
	mu sync.Mutex

	path      *pathfinder.Path
	prov      config.Provider
	store     store.FlightStore
	elevation terrain.ElevationGetter
	steer     sim.Steerable
	logger    *slog.Logger
	now       func() time.Time

	resettables []SessionResettable

	mode     Mode
	flight   *model.Flight
	plan     *pathfinder.ReturnPlan
	target   *geo.Position
	legStart *geo.Position
	offTrack float64
	lastFix  *geo.Position
	version  uint64
}

// NewNavigator creates an idle navigator. st, elev and steer may be nil:
// without a store nothing is logged, without terrain returns fly at the
// floor altitude, without steering the caller flies the waypoints itself.
func NewNavigator(path *pathfinder.Path, prov config.Provider, st store.FlightStore, elev terrain.ElevationGetter, steer sim.Steerable) *Navigator {
	return &Navigator{
		path:      path,
		prov:      prov,
		store:     st,
		elevation: elev,
		steer:     steer,
		logger:    slog.With("component", "navigator"),
		now:       time.Now,
		mode:      ModeIdle,
	}
}

// OnReset registers a component to be reset together with the navigator.
func (n *Navigator) OnReset(r SessionResettable) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resettables = append(n.resettables, r)
}

// Update implements TelemetrySink: it remembers the latest fix so a return
// always starts at the current position.
func (n *Navigator) Update(t *sim.Telemetry) {
	pos := t.Position()
	n.mu.Lock()
	n.lastFix = &pos
	n.mu.Unlock()
}

// UpdateState implements TelemetrySink.
func (n *Navigator) UpdateState(s sim.State) {}

// Record feeds an outbound fix into the path. The first fix becomes home
// and opens a new flight. Fixes are ignored while returning or home.
func (n *Navigator) Record(ctx context.Context, t *sim.Telemetry) {
	pos := t.Position()

	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastFix = &pos

	switch n.mode {
	case ModeIdle:
		n.startFlight(ctx, pos)
		return
	case ModeRecording:
	default:
		return
	}

	n.applyTunables(ctx)

	before := n.path.Stats()
	n.path.Add(pos.Lat, pos.Lng, pos.Alt)
	n.version++
	after := n.path.Stats()

	logging.Trace(n.logger, "Fix recorded", "pos", pos, "count", n.path.Count(), "threshold", n.path.CurrentThreshold())

	if after.LoopCuts > before.LoopCuts {
		n.emit(ctx, model.EventLoopCut, "Loop removed",
			fmt.Sprintf("%d points discarded, %d left", after.LoopDiscarded-before.LoopDiscarded, n.path.Count()))
	}
}

func (n *Navigator) startFlight(ctx context.Context, home geo.Position) {
	n.path.Reset()
	n.applyTunables(ctx)
	n.path.Add(home.Lat, home.Lng, home.Alt)
	n.mode = ModeRecording
	n.plan = nil
	n.target = nil
	n.version++

	n.flight = &model.Flight{StartedAt: n.now().UTC(), Home: home}
	if n.store != nil {
		f, err := n.store.CreateFlight(ctx, home, n.flight.StartedAt)
		if err != nil {
			n.logger.Error("Failed to log flight", "error", err)
		} else {
			n.flight = f
		}
	}

	n.logger.Info("Home set", "home", home, "flight", n.flight.ID)
	n.emit(ctx, model.EventHome, "Home set", home.String())
}

// applyTunables picks up thresholds changed at runtime.
func (n *Navigator) applyTunables(ctx context.Context) {
	if v := n.prov.InitialThreshold(ctx); v != n.path.InitialThreshold() {
		if err := n.path.SetInitialThreshold(v); err != nil {
			n.logger.Warn("Ignoring initial threshold", "value", v, "error", err)
		}
	}
	if v := n.prov.GrowthFactor(ctx); v != n.path.GrowthFactor() {
		if err := n.path.SetGrowthFactor(v); err != nil {
			n.logger.Warn("Ignoring growth factor", "value", v, "error", err)
		}
	}
}

// CommitReturn plans the flight home from the current position and starts
// steering towards the first waypoint.
func (n *Navigator) CommitReturn(ctx context.Context) (pathfinder.ReturnPlan, error) {
	return n.commitReturn(ctx, model.EventReturn, "Return committed")
}

func (n *Navigator) commitReturn(ctx context.Context, eventType, title string) (pathfinder.ReturnPlan, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.mode != ModeRecording {
		return pathfinder.ReturnPlan{}, ErrNotRecording
	}

	// The return starts where the vehicle is, not at the last recorded fix.
	if n.lastFix != nil {
		if tail, ok := n.path.Tail(); ok && tail != *n.lastFix {
			n.path.Add(n.lastFix.Lat, n.lastFix.Lng, n.lastFix.Alt)
		}
	}

	outbound := n.path.Positions()
	home, _ := n.path.Home()
	policy := terrain.NewReturnAltitude(n.elevation, home,
		n.prov.ReturnClearance(ctx), n.prov.ReturnFloor(ctx),
		n.prov.AppConfig().Return.TerrainStep.Meters())

	plan := n.path.PrepareReturn(policy.Lookup)
	n.plan = &plan
	n.mode = ModeReturning
	n.version++

	n.logger.Info("Return planned",
		"kind", plan.Kind,
		"waypoints", n.path.Count(),
		"removed", plan.Removed,
		"trip_m", plan.TripDistance,
		"direct_m", plan.DirectDistance,
		"unsafe_m", plan.UnsafeDistance)

	n.persistPlan(ctx, outbound, plan)
	n.emit(ctx, eventType, title, fmt.Sprintf("%s, %d waypoints, %d points removed, %.0f m",
		plan.Kind, n.path.Count(), plan.Removed, plan.TripDistance))

	// The tail is where the vehicle is now.
	start, _ := n.path.Pop()
	n.legStart = &start
	n.offTrack = 0
	n.steerNext(ctx)
	return plan, nil
}

func (n *Navigator) persistPlan(ctx context.Context, outbound []geo.Position, plan pathfinder.ReturnPlan) {
	if n.store == nil || n.flight == nil || n.flight.ID == "" {
		return
	}
	n.flight.Plan = string(plan.Kind)

	if err := n.store.SavePath(ctx, n.flight.ID, model.PathOutbound, outbound); err != nil {
		n.logger.Error("Failed to save outbound path", "error", err)
	}
	if err := n.store.SavePath(ctx, n.flight.ID, model.PathReturn, n.path.Positions()); err != nil {
		n.logger.Error("Failed to save return path", "error", err)
	}
	if err := n.store.SetFlightPlan(ctx, n.flight.ID, n.flight.Plan); err != nil {
		n.logger.Error("Failed to save return plan", "error", err)
	}
}

// steerNext targets the path tail, or finishes the flight when the path is empty.
// On the planned straight leg the target is never lower than the leg start,
// which carries the terrain altitude the planner chose for it.
func (n *Navigator) steerNext(ctx context.Context) {
	next, ok := n.path.Tail()
	if !ok {
		n.arrive(ctx)
		return
	}
	if n.onStraightLeg(next) && n.legStart.Alt > next.Alt {
		next.Alt = n.legStart.Alt
	}
	n.target = &next
	if n.steer != nil {
		n.steer.SetTarget(next)
	}
	logging.Trace(n.logger, "Steering", "target", next, "remaining", n.path.Count())
}

// onStraightLeg reports whether the leg from legStart to next was never flown
// outbound. Direct and path-join returns start with it; a home-join return
// flies it from the join point home.
func (n *Navigator) onStraightLeg(next geo.Position) bool {
	if n.plan == nil || n.legStart == nil {
		return false
	}
	switch n.plan.Kind {
	case pathfinder.ReturnDirect:
		return true
	case pathfinder.ReturnPathJoin:
		return sameSpot(next, n.plan.Join)
	case pathfinder.ReturnHomeJoin:
		return sameSpot(*n.legStart, n.plan.Join)
	default:
		return false
	}
}

func sameSpot(a, b geo.Position) bool {
	return a.Lat == b.Lat && a.Lng == b.Lng
}

func (n *Navigator) arrive(ctx context.Context) {
	n.mode = ModeHome
	n.target = nil
	if n.steer != nil {
		n.steer.ClearTarget()
	}
	n.endFlight(ctx)
	n.logger.Info("Arrived home")
	n.emit(ctx, model.EventArrived, "Arrived home", "")
}

func (n *Navigator) endFlight(ctx context.Context) {
	if n.flight == nil || !n.flight.Active() {
		return
	}
	ended := n.now().UTC()
	n.flight.EndedAt = &ended
	if n.store != nil && n.flight.ID != "" {
		if err := n.store.EndFlight(ctx, n.flight.ID, ended); err != nil {
			n.logger.Error("Failed to end flight", "error", err)
		}
	}
}

// Advance checks the fix against the current waypoint and moves on to the
// next one once it is within the acceptance radius. It reports whether the
// vehicle has just arrived home.
func (n *Navigator) Advance(ctx context.Context, t *sim.Telemetry) bool {
	pos := t.Position()

	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastFix = &pos

	if n.mode != ModeReturning || n.target == nil {
		return false
	}

	if n.legStart != nil {
		n.offTrack = geo.DistanceToSegment(t.Point(), n.legStart.Point(), n.target.Point())
	}

	dist := geo.Distance(t.Point(), n.target.Point())
	if dist > n.prov.AcceptanceRadius(ctx) {
		return false
	}

	reached, _ := n.path.Pop()
	n.legStart = &reached
	n.offTrack = 0
	n.version++
	n.logger.Debug("Waypoint reached", "waypoint", reached, "distance_m", dist, "remaining", n.path.Count())

	if n.path.Count() > 0 {
		n.emit(ctx, model.EventWaypoint, "Waypoint reached", fmt.Sprintf("%s, %d left", reached, n.path.Count()))
	}
	n.steerNext(ctx)
	return n.mode == ModeHome
}

// Reset ends the current flight and clears the path; the next fix starts a
// new flight.
func (n *Navigator) Reset(ctx context.Context) {
	n.mu.Lock()
	if n.mode == ModeReturning && n.steer != nil {
		n.steer.ClearTarget()
	}
	if n.mode != ModeIdle {
		n.emit(ctx, model.EventReset, "Recorder reset", fmt.Sprintf("%s, %d points dropped", n.mode, n.path.Count()))
	}
	n.endFlight(ctx)

	n.path.Reset()
	n.mode = ModeIdle
	n.flight = nil
	n.plan = nil
	n.target = nil
	n.legStart = nil
	n.offTrack = 0
	n.version++
	resettables := n.resettables
	n.mu.Unlock()

	for _, r := range resettables {
		r.ResetSession(ctx)
	}
	n.logger.Info("Recorder reset")
}

// Mode returns the current mode.
func (n *Navigator) Mode() Mode {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mode
}

// Version increases with every change to the path or mode.
func (n *Navigator) Version() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.version
}

// Flight returns a copy of the current flight, or nil before the first fix.
func (n *Navigator) Flight() *model.Flight {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.flight == nil {
		return nil
	}
	f := *n.flight
	return &f
}

// Snapshot returns a copy of the navigator state.
func (n *Navigator) Snapshot() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()

	s := Snapshot{
		Mode:     n.mode,
		Path:     n.path.Positions(),
		OffTrack: n.offTrack,
		Version:  n.version,
	}
	if n.flight != nil {
		f := *n.flight
		s.Flight = &f
	}
	if n.target != nil {
		t := *n.target
		s.Target = &t
	}
	if n.plan != nil {
		p := *n.plan
		s.Plan = &p
	}
	return s
}

// Stats returns the recorder counters and thresholds.
func (n *Navigator) Stats() PathStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return PathStats{
		Mode:             n.mode,
		Count:            n.path.Count(),
		Capacity:         n.path.Capacity(),
		InitialThreshold: n.path.InitialThreshold(),
		CurrentThreshold: n.path.CurrentThreshold(),
		GrowthFactor:     n.path.GrowthFactor(),
		Engine:           n.path.Stats(),
	}
}

// emit writes a flight event to the event log and the store.
func (n *Navigator) emit(ctx context.Context, typ, title, summary string) {
	e := &model.FlightEvent{
		Timestamp: n.now(),
		Type:      typ,
		Title:     title,
		Summary:   summary,
	}
	if n.flight != nil {
		e.FlightID = n.flight.ID
	}
	logging.LogEvent(e)

	if n.store != nil && e.FlightID != "" {
		if err := n.store.AddEvent(ctx, e); err != nil {
			n.logger.Warn("Failed to store event", "type", typ, "error", err)
		}
	}
}
