package core

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackback/pkg/config"
	"trackback/pkg/db"
	"trackback/pkg/geo"
	"trackback/pkg/model"
	"trackback/pkg/pathfinder"
	"trackback/pkg/sim"
	"trackback/pkg/store"
	"trackback/pkg/terrain"
)

type fakeSteer struct {
	mu      sync.Mutex
	targets []geo.Position
	cleared int
}

func (f *fakeSteer) SetTarget(pos geo.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, pos)
}

func (f *fakeSteer) ClearTarget() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
}

type resetCounter struct{ n int }

func (r *resetCounter) ResetSession(ctx context.Context) { r.n++ }

type navFixture struct {
	nav   *Navigator
	store *store.SQLiteStore
	steer *fakeSteer
	prov  *config.UnifiedProvider
}

func newNavFixture(t *testing.T, mutate func(*config.Config)) *navFixture {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	d, err := db.Init(filepath.Join(t.TempDir(), "nav.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	st := store.NewSQLiteStore(d)

	path, err := pathfinder.New(cfg.Path.Recorder(), nil)
	require.NoError(t, err)

	prov := config.NewProvider(cfg, st)
	steer := &fakeSteer{}
	nav := NewNavigator(path, prov, st, terrain.FlatProvider{Elevation: 400}, steer)
	return &navFixture{nav: nav, store: st, steer: steer, prov: prov}
}

func fix(lat, lon, alt float64) *sim.Telemetry {
	return &sim.Telemetry{Latitude: lat, Longitude: lon, AltitudeMSL: alt}
}

func eventTypes(t *testing.T, st *store.SQLiteStore, flightID string) []string {
	t.Helper()
	events, err := st.ListEvents(context.Background(), flightID)
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func TestNavigator_FirstFixSetsHome(t *testing.T) {
	f := newNavFixture(t, nil)
	ctx := context.Background()

	assert.Equal(t, ModeIdle, f.nav.Mode())
	assert.Nil(t, f.nav.Flight())

	f.nav.Record(ctx, fix(47.0, 8.0, 400))

	assert.Equal(t, ModeRecording, f.nav.Mode())
	flight := f.nav.Flight()
	require.NotNil(t, flight)
	assert.Equal(t, geo.FromDegrees(47.0, 8.0, 400), flight.Home)

	stored, err := f.store.GetFlight(ctx, flight.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Active())
	assert.Equal(t, []string{model.EventHome}, eventTypes(t, f.store, flight.ID))

	snap := f.nav.Snapshot()
	assert.Len(t, snap.Path, 1)
	assert.Nil(t, snap.Target)
}

func TestNavigator_CommitWithoutRecording(t *testing.T) {
	f := newNavFixture(t, nil)

	_, err := f.nav.CommitReturn(context.Background())
	assert.ErrorIs(t, err, ErrNotRecording)

	// Advance is a no-op outside a return.
	assert.False(t, f.nav.Advance(context.Background(), fix(0, 0, 0)))
}

func TestNavigator_FullFlight(t *testing.T) {
	f := newNavFixture(t, nil)
	ctx := context.Background()

	// Out east, then north, then back west: an L with a dog-leg.
	fixes := []*sim.Telemetry{
		fix(47.000, 8.000, 400),
		fix(47.000, 8.005, 450),
		fix(47.000, 8.010, 480),
		fix(47.005, 8.010, 500),
		fix(47.010, 8.010, 500),
		fix(47.010, 8.005, 500),
	}
	for _, tel := range fixes {
		f.nav.Record(ctx, tel)
	}

	plan, err := f.nav.CommitReturn(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, pathfinder.ReturnEmpty, plan.Kind)
	assert.Equal(t, ModeReturning, f.nav.Mode())

	// Committing twice is refused.
	_, err = f.nav.CommitReturn(ctx)
	assert.ErrorIs(t, err, ErrNotRecording)

	// Fixes are no longer recorded.
	before := f.nav.Stats().Engine.Added
	f.nav.Record(ctx, fix(47.02, 8.02, 500))
	assert.Equal(t, before, f.nav.Stats().Engine.Added)

	// Fly each waypoint.
	steps := 0
	for f.nav.Mode() == ModeReturning && steps < 300 {
		target := f.nav.Snapshot().Target
		require.NotNil(t, target)

		// Far away: nothing happens.
		assert.False(t, f.nav.Advance(ctx, fix(46.0, 7.0, 500)))

		p := target.Point()
		f.nav.Advance(ctx, fix(p.Lat, p.Lon, target.AltMeters()))
		steps++
	}

	assert.Equal(t, ModeHome, f.nav.Mode())
	assert.Greater(t, steps, 0)
	assert.Empty(t, f.nav.Snapshot().Path)

	f.steer.mu.Lock()
	assert.Len(t, f.steer.targets, steps)
	assert.Equal(t, geo.FromDegrees(47.0, 8.0, 400).Point(), f.steer.targets[len(f.steer.targets)-1].Point())
	assert.Equal(t, 1, f.steer.cleared)
	f.steer.mu.Unlock()

	flight := f.nav.Flight()
	stored, err := f.store.GetFlight(ctx, flight.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active())
	assert.Equal(t, string(plan.Kind), stored.Plan)

	outbound, err := f.store.GetPath(ctx, flight.ID, model.PathOutbound)
	require.NoError(t, err)
	assert.Equal(t, geo.FromDegrees(47.0, 8.0, 400), outbound[0])
	ret, err := f.store.GetPath(ctx, flight.ID, model.PathReturn)
	require.NoError(t, err)
	assert.NotEmpty(t, ret)

	types := eventTypes(t, f.store, flight.ID)
	assert.Equal(t, model.EventHome, types[0])
	assert.Contains(t, types, model.EventReturn)
	assert.Equal(t, model.EventArrived, types[len(types)-1])
}

func TestNavigator_OffTrack(t *testing.T) {
	f := newNavFixture(t, nil)
	ctx := context.Background()

	for _, tel := range []*sim.Telemetry{fix(47.0, 8.0, 400), fix(47.0, 8.01, 450), fix(47.0, 8.02, 450)} {
		f.nav.Record(ctx, tel)
	}
	_, err := f.nav.CommitReturn(ctx)
	require.NoError(t, err)
	assert.Zero(t, f.nav.Snapshot().OffTrack)

	legStart := geo.Point{Lat: 47.0, Lon: 8.02}
	target := f.nav.Snapshot().Target
	require.NotNil(t, target)

	mid := geo.Interpolate(legStart, target.Point(), 0.5)
	abeam := geo.DestinationPoint(mid, 200, 0)
	assert.False(t, f.nav.Advance(ctx, fix(abeam.Lat, abeam.Lon, 450)))
	assert.InDelta(t, 200, f.nav.Snapshot().OffTrack, 5)
}

// kmDeg converts kilometers along a meridian (or the equator) to degrees.
func kmDeg(v float64) float64 {
	return v * 1000 / geo.EarthRadius * 180 / math.Pi
}

func TestNavigator_StraightLegKeepsTerrainAltitude(t *testing.T) {
	// FlatProvider at 400 m plus the default 60 m clearance.
	const safeAlt, recordedAlt = 46000, 40000

	type wp struct {
		north, east float64
		alt         int32
	}
	tests := []struct {
		name    string
		fixes   [][2]float64 // north km, east km
		kind    pathfinder.ReturnKind
		targets []wp
	}{
		{
			name:    "Direct",
			fixes:   [][2]float64{{0, 0}, {5, 0}, {5, 5}, {0.1, 5}},
			kind:    pathfinder.ReturnDirect,
			targets: []wp{{0, 0, safeAlt}},
		},
		{
			name:    "Path join",
			fixes:   [][2]float64{{0, 0}, {0, 10}, {5, 10}, {5, 11}, {0.2, 11}},
			kind:    pathfinder.ReturnPathJoin,
			targets: []wp{{0, 10, safeAlt}, {0, 0, recordedAlt}},
		},
		{
			name:    "Home join",
			fixes:   [][2]float64{{0, 0}, {5, 0}, {5, 1}, {0.2, 1}, {0.2, 11}},
			kind:    pathfinder.ReturnHomeJoin,
			targets: []wp{{0.2, 1, safeAlt}, {0, 0, safeAlt}},
		},
		{
			name:    "Verbatim",
			fixes:   [][2]float64{{0, 0}, {0.5, 5}, {0, 10}},
			kind:    pathfinder.ReturnVerbatim,
			targets: []wp{{0.5, 5, recordedAlt}, {0, 0, recordedAlt}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newNavFixture(t, nil)
			ctx := context.Background()

			for _, fx := range tt.fixes {
				f.nav.Record(ctx, fix(kmDeg(fx[0]), kmDeg(fx[1]), 400))
			}
			plan, err := f.nav.CommitReturn(ctx)
			require.NoError(t, err)
			require.Equal(t, tt.kind, plan.Kind)

			for i, w := range tt.targets {
				target := f.nav.Snapshot().Target
				require.NotNil(t, target, "waypoint %d", i)
				want := geo.FromDegrees(kmDeg(w.north), kmDeg(w.east), 0)
				assert.Equal(t, want.Lat, target.Lat, "lat of waypoint %d", i)
				assert.Equal(t, want.Lng, target.Lng, "lng of waypoint %d", i)
				assert.Equal(t, w.alt, target.Alt, "altitude of waypoint %d", i)

				p := target.Point()
				f.nav.Advance(ctx, fix(p.Lat, p.Lon, target.AltMeters()))
			}

			assert.Equal(t, ModeHome, f.nav.Mode())
			f.steer.mu.Lock()
			defer f.steer.mu.Unlock()
			require.Len(t, f.steer.targets, len(tt.targets))
			for i, w := range tt.targets {
				assert.Equal(t, w.alt, f.steer.targets[i].Alt, "steered altitude %d", i)
			}
		})
	}
}

func TestNavigator_ReturnStartsAtLatestFix(t *testing.T) {
	f := newNavFixture(t, nil)
	ctx := context.Background()

	f.nav.Record(ctx, fix(47.0, 8.0, 400))
	f.nav.Record(ctx, fix(47.0, 8.01, 450))

	// A fix seen by the sink but not yet recorded.
	latest := fix(47.005, 8.01, 460)
	f.nav.Update(latest)

	_, err := f.nav.CommitReturn(ctx)
	require.NoError(t, err)

	outbound, err := f.store.GetPath(ctx, f.nav.Flight().ID, model.PathOutbound)
	require.NoError(t, err)
	require.NotEmpty(t, outbound)
	last := outbound[len(outbound)-1]
	assert.Equal(t, latest.Position().Lat, last.Lat)
	assert.Equal(t, latest.Position().Lng, last.Lng)
}

func TestNavigator_OnlyHome(t *testing.T) {
	f := newNavFixture(t, nil)
	ctx := context.Background()

	f.nav.Record(ctx, fix(47.0, 8.0, 400))
	plan, err := f.nav.CommitReturn(ctx)
	require.NoError(t, err)
	assert.Equal(t, pathfinder.ReturnEmpty, plan.Kind)
	assert.Equal(t, ModeHome, f.nav.Mode())
}

func TestNavigator_LoopCutEvent(t *testing.T) {
	f := newNavFixture(t, func(c *config.Config) {
		c.Path.InitialThreshold = 1e-9
	})
	ctx := context.Background()

	// The last leg crosses the first one.
	for _, tel := range []*sim.Telemetry{
		fix(0, 0, 100),
		fix(0, 0.0001, 100),
		fix(0.0001, 0.0001, 100),
		fix(0.0001, 0.00005, 100),
		fix(-0.0001, 0.00005, 100),
	} {
		f.nav.Record(ctx, tel)
	}

	stats := f.nav.Stats()
	assert.Equal(t, 1, stats.Engine.LoopCuts)
	assert.Equal(t, 2, stats.Count)
	assert.Contains(t, eventTypes(t, f.store, f.nav.Flight().ID), model.EventLoopCut)
}

func TestNavigator_RuntimeTunables(t *testing.T) {
	f := newNavFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.store.SetState(ctx, config.KeyInitialThreshold, "5"))
	require.NoError(t, f.store.SetState(ctx, config.KeyGrowthFactor, "1.5"))

	f.nav.Record(ctx, fix(47.0, 8.0, 400))
	stats := f.nav.Stats()
	assert.Equal(t, 5.0, stats.InitialThreshold)
	assert.Equal(t, 1.5, stats.GrowthFactor)
	assert.Equal(t, 256, stats.Capacity)
}

func TestNavigator_Reset(t *testing.T) {
	f := newNavFixture(t, nil)
	ctx := context.Background()
	counter := &resetCounter{}
	f.nav.OnReset(counter)

	f.nav.Record(ctx, fix(47.0, 8.0, 400))
	f.nav.Record(ctx, fix(47.0, 8.01, 400))
	flightID := f.nav.Flight().ID
	version := f.nav.Version()

	f.nav.Reset(ctx)

	assert.Equal(t, ModeIdle, f.nav.Mode())
	assert.Nil(t, f.nav.Flight())
	assert.Empty(t, f.nav.Snapshot().Path)
	assert.Greater(t, f.nav.Version(), version)
	assert.Equal(t, 1, counter.n)

	stored, err := f.store.GetFlight(ctx, flightID)
	require.NoError(t, err)
	assert.False(t, stored.Active())
	assert.Contains(t, eventTypes(t, f.store, flightID), model.EventReset)

	// The next fix opens a new flight.
	f.nav.Record(ctx, fix(46.0, 7.0, 300))
	require.NotNil(t, f.nav.Flight())
	assert.NotEqual(t, flightID, f.nav.Flight().ID)
}

func TestNavigator_WithoutStore(t *testing.T) {
	path, err := pathfinder.New(pathfinder.DefaultConfig(), nil)
	require.NoError(t, err)
	nav := NewNavigator(path, config.NewProvider(config.DefaultConfig(), nil), nil, nil, nil)
	ctx := context.Background()

	nav.Record(ctx, fix(47.0, 8.0, 400))
	nav.Record(ctx, fix(47.0, 8.01, 400))
	_, err = nav.CommitReturn(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeReturning, nav.Mode())
}

func TestAutoReturnJob(t *testing.T) {
	f := newNavFixture(t, func(c *config.Config) {
		c.Return.AutoAfter = config.Duration(time.Hour)
	})
	ctx := context.Background()
	job := NewAutoReturnJob(f.nav, f.prov)
	job.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	tel := fix(47.0, 8.0, 400)
	assert.False(t, job.ShouldFire(tel), "idle navigator")

	f.nav.Record(ctx, tel)
	f.nav.Record(ctx, fix(47.0, 8.01, 400))
	require.True(t, job.ShouldFire(tel))

	job.Run(ctx, tel)
	assert.Equal(t, ModeReturning, f.nav.Mode())
	assert.Contains(t, eventTypes(t, f.store, f.nav.Flight().ID), model.EventAutoReturn)
	assert.False(t, job.ShouldFire(tel), "already returning")

	// Running again is harmless.
	job.Run(ctx, tel)
	assert.Equal(t, ModeReturning, f.nav.Mode())
}

func TestAutoReturnJob_Disabled(t *testing.T) {
	f := newNavFixture(t, nil)
	job := NewAutoReturnJob(f.nav, f.prov)
	job.now = func() time.Time { return time.Now().Add(1000 * time.Hour) }

	f.nav.Record(context.Background(), fix(47.0, 8.0, 400))
	assert.False(t, job.ShouldFire(fix(47.0, 8.0, 400)))
}

func TestNavigationJobs(t *testing.T) {
	f := newNavFixture(t, nil)
	ctx := context.Background()

	rec := NewRecordingJob(f.nav, 50)
	guide := NewGuidanceJob(f.nav, 10*time.Millisecond)
	assert.Equal(t, "Recording", rec.Name())
	assert.Equal(t, "Guidance", guide.Name())

	tel := fix(47.0, 8.0, 400)
	require.True(t, rec.ShouldFire(tel))
	rec.Run(ctx, tel)
	assert.Equal(t, ModeRecording, f.nav.Mode())

	rec.Run(ctx, fix(47.0, 8.01, 400))
	_, err := f.nav.CommitReturn(ctx)
	require.NoError(t, err)

	// Guidance at home finishes the flight once the first waypoint is home.
	for i := 0; i < 10 && f.nav.Mode() == ModeReturning; i++ {
		target := f.nav.Snapshot().Target
		p := target.Point()
		guide.Run(ctx, fix(p.Lat, p.Lon, target.AltMeters()))
	}
	assert.Equal(t, ModeHome, f.nav.Mode())
}

func TestPathPersistenceJob(t *testing.T) {
	f := newNavFixture(t, nil)
	ctx := context.Background()
	job := NewPathPersistenceJob(f.store, f.nav, 0)
	assert.Equal(t, 30*time.Second, job.interval)

	// Nothing to save while idle.
	job.checkAndSave(ctx)
	assert.Zero(t, job.lastSaved)

	f.nav.Record(ctx, fix(47.0, 8.0, 400))
	f.nav.Record(ctx, fix(47.0, 8.01, 450))
	job.checkAndSave(ctx)

	saved, err := f.store.GetPath(ctx, f.nav.Flight().ID, model.PathOutbound)
	require.NoError(t, err)
	assert.Equal(t, f.nav.Snapshot().Path, saved)
	assert.Equal(t, f.nav.Version(), job.lastSaved)
}
