package mocksim

import (
	"context"
	"math"
	"sync"
	"time"

	"trackback/pkg/config"
	"trackback/pkg/geo"
	"trackback/pkg/sim"
	"trackback/pkg/terrain"
)

const (
	// Phases of the scripted flight
	PhaseParked = "PARKED"
	PhaseScript = "SCRIPT"
	PhaseLoiter = "LOITER"
	PhaseGuided = "GUIDED"

	tickRate = 100 * time.Millisecond
)

// Leg is one straight segment of the scripted outbound flight, optionally
// followed by orbits (full right-hand circles).
type Leg struct {
	Heading  float64 // degrees true
	Distance float64 // meters
	Orbits   float64
}

// Config holds the mock vehicle's start point, performance and script.
type Config struct {
	StartLat       float64
	StartLon       float64
	StartAlt       float64 // field elevation, meters MSL
	StartHeading   float64
	DurationParked time.Duration
	CruiseSpeed    float64 // m/s
	CruiseAltitude float64 // meters above the field
	ClimbRate      float64 // m/s
	TurnRate       float64 // deg/s
	Legs           []Leg

	// Manual disables the physics goroutine; the caller advances time with Step.
	Manual bool
}

// ConfigFrom converts the YAML mock settings.
func ConfigFrom(c *config.MockSimConfig) Config {
	legs := make([]Leg, 0, len(c.Legs))
	for _, l := range c.Legs {
		legs = append(legs, Leg{Heading: l.Heading, Distance: l.Distance.Meters(), Orbits: l.Orbits})
	}
	return Config{
		StartLat:       c.StartLat,
		StartLon:       c.StartLon,
		StartAlt:       c.StartAlt,
		StartHeading:   c.StartHeading,
		DurationParked: c.DurationParked.Std(),
		CruiseSpeed:    c.CruiseSpeed,
		CruiseAltitude: c.CruiseAltitude.Meters(),
		ClimbRate:      c.ClimbRate,
		TurnRate:       c.TurnRate,
		Legs:           legs,
	}
}

// MockClient implements sim.Client and sim.Steerable with a simple
// kinematic vehicle: constant speed, rate-limited turns and climbs.
type MockClient struct {
	mu     sync.Mutex
	tel    sim.Telemetry
	config Config

	phase        string
	phaseElapsed time.Duration
	clock        time.Time // simulated time

	legIdx      int
	legFlown    float64 // meters
	orbitTurned float64 // degrees

	heading   float64 // commanded heading, the reported one is the ground track
	fieldElev float64
	groundAlt float64
	target    *geo.Position

	elevation terrain.ElevationGetter
	trackBuf  *geo.TrackBuffer
	climb     *sim.ClimbRate

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewClient creates a new mock vehicle parked at the start position.
func NewClient(cfg Config) *MockClient {
	m := &MockClient{
		config: cfg,
		phase:  PhaseParked,
		clock:  time.Unix(0, 0).UTC(),
		tel: sim.Telemetry{
			Latitude:    cfg.StartLat,
			Longitude:   cfg.StartLon,
			AltitudeMSL: cfg.StartAlt,
			Heading:     cfg.StartHeading,
			IsOnGround:  true,
			FlightStage: sim.StageGround,
		},
		heading:   cfg.StartHeading,
		fieldElev: cfg.StartAlt,
		groundAlt: cfg.StartAlt,
		trackBuf:  geo.NewTrackBuffer(5),
		climb:     sim.NewClimbRate(3 * time.Second),
		stopCh:    make(chan struct{}),
	}

	if !cfg.Manual {
		m.wg.Add(1)
		go m.physicsLoop()
	}
	return m
}

// SetElevationProvider injects terrain for AGL calculations. While parked
// the vehicle snaps to the terrain at its position.
func (m *MockClient) SetElevationProvider(e terrain.ElevationGetter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elevation = e
	if e == nil {
		return
	}

	elev, err := e.GetElevation(m.tel.Latitude, m.tel.Longitude)
	if err != nil {
		return
	}
	m.groundAlt = float64(elev)
	if m.phase == PhaseParked {
		m.fieldElev = m.groundAlt
		m.tel.AltitudeMSL = m.groundAlt
	}
}

// GetTelemetry returns the current state of the simulated vehicle.
func (m *MockClient) GetTelemetry(ctx context.Context) (sim.Telemetry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tel, nil
}

// GetState returns the link state. The mock is always active.
func (m *MockClient) GetState() sim.State {
	return sim.StateActive
}

// Phase returns the current phase of the scripted flight.
func (m *MockClient) Phase() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// SetTarget switches to guided flight towards pos. The altitude of pos is
// the altitude to hold on the way.
func (m *MockClient) SetTarget(pos geo.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.target = &pos
	if m.phase != PhaseParked {
		m.setPhase(PhaseGuided)
	}
}

// ClearTarget stops guided flight; the vehicle circles where it is.
func (m *MockClient) ClearTarget() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.target = nil
	if m.phase == PhaseGuided {
		m.setPhase(PhaseLoiter)
	}
}

// Close stops the physics loop.
func (m *MockClient) Close() error {
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
	m.wg.Wait()
	return nil
}

func (m *MockClient) physicsLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Step(tickRate)
		}
	}
}

func (m *MockClient) setPhase(p string) {
	m.phase = p
	m.phaseElapsed = 0
}

// Step advances the simulation by dt.
func (m *MockClient) Step(dt time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clock = m.clock.Add(dt)
	m.phaseElapsed += dt
	s := dt.Seconds()

	switch m.phase {
	case PhaseParked:
		m.tel.GroundSpeed = 0
		if m.phaseElapsed >= m.config.DurationParked {
			m.fieldElev = m.groundAlt
			if m.target != nil {
				m.setPhase(PhaseGuided)
			} else {
				m.setPhase(PhaseScript)
			}
		}
	case PhaseScript:
		m.stepScript(s)
	case PhaseLoiter:
		m.turn(m.config.TurnRate * s)
		m.climbTowards(m.fieldElev+m.config.CruiseAltitude, s)
		m.move(m.config.CruiseSpeed * s)
	case PhaseGuided:
		m.stepGuided(s)
	}

	m.updateDerived()
}

func (m *MockClient) stepScript(s float64) {
	m.climbTowards(m.fieldElev+m.config.CruiseAltitude, s)
	dist := m.config.CruiseSpeed * s

	if m.legIdx >= len(m.config.Legs) {
		m.setPhase(PhaseLoiter)
		m.move(dist)
		return
	}
	leg := m.config.Legs[m.legIdx]

	switch {
	case m.legFlown < leg.Distance:
		m.turnTowards(leg.Heading, m.config.TurnRate*s)
		m.legFlown += dist
	case m.orbitTurned < leg.Orbits*360:
		step := m.config.TurnRate * s
		m.turn(step)
		m.orbitTurned += step
	default:
		m.legIdx++
		m.legFlown = 0
		m.orbitTurned = 0
	}
	m.move(dist)
}

func (m *MockClient) stepGuided(s float64) {
	if m.target == nil {
		m.setPhase(PhaseLoiter)
		return
	}
	m.climbTowards(m.target.AltMeters(), s)

	here := geo.Point{Lat: m.tel.Latitude, Lon: m.tel.Longitude}
	there := m.target.Point()
	remaining := geo.Distance(here, there)
	dist := m.config.CruiseSpeed * s

	if remaining <= dist {
		// Arrived: hold position over the target.
		m.tel.Latitude = there.Lat
		m.tel.Longitude = there.Lon
		m.tel.GroundSpeed = 0
		return
	}

	bearing := geo.Bearing(here, there)
	if remaining < 3*m.turnRadius() {
		m.heading = bearing
	} else {
		m.turnTowards(bearing, m.config.TurnRate*s)
	}
	m.move(dist)
}

func (m *MockClient) turnRadius() float64 {
	rate := m.config.TurnRate * math.Pi / 180
	if rate <= 0 {
		return 0
	}
	return m.config.CruiseSpeed / rate
}

func (m *MockClient) turn(deg float64) {
	m.heading = math.Mod(m.heading+deg+360, 360)
}

func (m *MockClient) turnTowards(desired, maxDeg float64) {
	diff := geo.NormalizeAngle(desired - m.heading)
	if math.Abs(diff) <= maxDeg || maxDeg <= 0 {
		m.heading = math.Mod(desired+360, 360)
		return
	}
	m.turn(math.Copysign(maxDeg, diff))
}

func (m *MockClient) climbTowards(alt, s float64) {
	step := m.config.ClimbRate * s
	diff := alt - m.tel.AltitudeMSL
	if math.Abs(diff) <= step {
		m.tel.AltitudeMSL = alt
		return
	}
	m.tel.AltitudeMSL += math.Copysign(step, diff)
}

func (m *MockClient) move(dist float64) {
	m.tel.GroundSpeed = m.config.CruiseSpeed
	if dist <= 0 {
		return
	}
	next := geo.DestinationPoint(geo.Point{Lat: m.tel.Latitude, Lon: m.tel.Longitude}, dist, m.heading)
	m.tel.Latitude = next.Lat
	m.tel.Longitude = next.Lon
}

func (m *MockClient) updateDerived() {
	if m.elevation != nil {
		if elev, err := m.elevation.GetElevation(m.tel.Latitude, m.tel.Longitude); err == nil {
			m.groundAlt = float64(elev)
		}
	}

	m.tel.IsOnGround = m.phase == PhaseParked
	m.tel.AltitudeAGL = math.Max(0, m.tel.AltitudeMSL-m.groundAlt)

	if m.tel.IsOnGround {
		m.trackBuf.Reset()
		m.tel.Heading = m.heading
	} else {
		m.tel.Heading = m.trackBuf.Push(geo.Point{Lat: m.tel.Latitude, Lon: m.tel.Longitude}, m.heading)
	}
	m.tel.VerticalSpeed = m.climb.Update(m.clock, m.tel.AltitudeMSL)
	m.tel.FlightStage = sim.DetermineFlightStage(&m.tel)
}
