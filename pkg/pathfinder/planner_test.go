package pathfinder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackback/pkg/geo"
)

// km converts kilometers along a meridian (or the equator) to fixed-point units.
func km(v float64) int32 {
	return int32(math.Round(v * 1000 / geo.EarthRadius * 180 / math.Pi * geo.CoordScale))
}

type lookupRecorder struct {
	alt   int32
	calls [][2]int32
}

func (l *lookupRecorder) lookup(lat, lng int32) int32 {
	l.calls = append(l.calls, [2]int32{lat, lng})
	return l.alt
}

func recordTrack(t *testing.T, fixes [][2]float64) *Path {
	t.Helper()
	p := newPath(t, 32, 1e-12)
	for _, f := range fixes {
		p.Add(km(f[0]), km(f[1]), 0)
	}
	require.Equal(t, len(fixes), p.Count(), "test track must survive recording untouched")
	return p
}

func TestPrepareReturn_Empty(t *testing.T) {
	rec := &lookupRecorder{alt: 1}

	p := newPath(t, 8, 0)
	assert.Equal(t, ReturnEmpty, p.PrepareReturn(rec.lookup).Kind)

	p.Add(0, 0, 0)
	assert.Equal(t, ReturnEmpty, p.PrepareReturn(rec.lookup).Kind)
	assert.Equal(t, 1, p.Count())
	assert.Empty(t, rec.calls)
}

func TestPrepareReturn_Shapes(t *testing.T) {
	const lookupAlt = 45000

	tests := []struct {
		name      string
		fixes     [][2]float64 // north km, east km
		wantKind  ReturnKind
		wantTrack [][2]float64
		wantAltAt int // index into wantTrack that takes the lookup altitude, -1 for none
		wantJoin  [2]float64
	}{
		{
			name:      "Short track flown back as is",
			fixes:     [][2]float64{{0, 0}, {0.03, 0}, {0.03, 0.03}, {0.0005, 0.03}},
			wantKind:  ReturnVerbatim,
			wantTrack: [][2]float64{{0, 0}, {0.03, 0}, {0.03, 0.03}, {0.0005, 0.03}},
			wantAltAt: -1,
		},
		{
			name:      "Nearly straight track",
			fixes:     [][2]float64{{0, 0}, {0.5, 5}, {0, 10}},
			wantKind:  ReturnVerbatim,
			wantTrack: [][2]float64{{0, 0}, {0.5, 5}, {0, 10}},
			wantAltAt: -1,
		},
		{
			name:      "Detour near the tail joins the track",
			fixes:     [][2]float64{{0, 0}, {0, 10}, {5, 10}, {5, 11}, {0.2, 11}},
			wantKind:  ReturnPathJoin,
			wantTrack: [][2]float64{{0, 0}, {0, 10}, {0.2, 11}},
			wantAltAt: 2,
			wantJoin:  [2]float64{0, 10},
		},
		{
			name:      "Detour near home leaves the track",
			fixes:     [][2]float64{{0, 0}, {5, 0}, {5, 1}, {0.2, 1}, {0.2, 11}},
			wantKind:  ReturnHomeJoin,
			wantTrack: [][2]float64{{0, 0}, {0.2, 1}, {0.2, 11}},
			wantAltAt: 1,
			wantJoin:  [2]float64{0.2, 1},
		},
		{
			name:      "No join point qualifies",
			fixes:     [][2]float64{{0, 0}, {5, 0}, {5, 5}, {0.1, 5}},
			wantKind:  ReturnDirect,
			wantTrack: [][2]float64{{0, 0}, {0.1, 5}},
			wantAltAt: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := recordTrack(t, tt.fixes)
			rec := &lookupRecorder{alt: lookupAlt}

			plan := p.PrepareReturn(rec.lookup)
			assert.Equal(t, tt.wantKind, plan.Kind)
			assert.Equal(t, len(tt.fixes)-len(tt.wantTrack), plan.Removed)
			assert.Equal(t, plan.Removed, p.Stats().Spliced)
			assertConsistent(t, p)

			got := p.Positions()
			require.Len(t, got, len(tt.wantTrack))
			for i, w := range tt.wantTrack {
				assert.Equal(t, km(w[0]), got[i].Lat, "lat of point %d", i)
				assert.Equal(t, km(w[1]), got[i].Lng, "lng of point %d", i)
				if i == tt.wantAltAt {
					assert.Equal(t, int32(lookupAlt), got[i].Alt, "altitude of point %d", i)
				} else {
					assert.Zero(t, got[i].Alt, "altitude of point %d", i)
				}
			}

			if tt.wantAltAt < 0 {
				assert.Empty(t, rec.calls)
				assert.Equal(t, plan.PathDistance, plan.TripDistance)
				return
			}

			require.Len(t, rec.calls, 1)
			at := tt.wantTrack[tt.wantAltAt]
			assert.Equal(t, [2]int32{km(at[0]), km(at[1])}, rec.calls[0])
			assert.LessOrEqual(t, plan.TripDistance, plan.PathDistance)
			assert.LessOrEqual(t, plan.UnsafeDistance, plan.TripDistance)

			if tt.wantKind == ReturnDirect {
				assert.Equal(t, plan.DirectDistance, plan.UnsafeDistance)
				return
			}
			assert.Equal(t, km(tt.wantJoin[0]), plan.Join.Lat)
			assert.Equal(t, km(tt.wantJoin[1]), plan.Join.Lng)
			assert.LessOrEqual(t, plan.TripDistance, plan.DirectDistance*plan.MaxRatio)
		})
	}
}

func TestPrepareReturn_Distances(t *testing.T) {
	p := recordTrack(t, [][2]float64{{0, 0}, {0, 10}, {5, 10}, {5, 11}, {0.2, 11}})

	plan := p.PrepareReturn(func(int32, int32) int32 { return 0 })
	require.Equal(t, ReturnPathJoin, plan.Kind)

	assert.InDelta(t, 20800, plan.PathDistance, 1)
	assert.InDelta(t, math.Hypot(11000, 200), plan.DirectDistance, 1)
	assert.InDelta(t, 1+10/(20.8*20.8), plan.MaxRatio, 1e-4)
	assert.InDelta(t, math.Hypot(1000, 200), plan.UnsafeDistance, 1)
	assert.InDelta(t, math.Hypot(1000, 200)+10000, plan.TripDistance, 1)
}

func TestPrepareReturn_PopsHomeward(t *testing.T) {
	p := recordTrack(t, [][2]float64{{0, 0}, {5, 0}, {5, 1}, {0.2, 1}, {0.2, 11}})
	plan := p.PrepareReturn(func(int32, int32) int32 { return 30000 })
	require.Equal(t, ReturnHomeJoin, plan.Kind)

	var legs []geo.Position
	for {
		pos, ok := p.Pop()
		if !ok {
			break
		}
		legs = append(legs, pos)
	}
	require.Len(t, legs, 3)
	assert.Equal(t, km(0.2), legs[0].Lat)
	assert.Equal(t, km(11), legs[0].Lng)
	assert.Equal(t, plan.Join, legs[1])
	assert.Equal(t, geo.Position{}, legs[2])
}
