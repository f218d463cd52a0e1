package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackback/pkg/geo"
	"trackback/pkg/gpx"
	"trackback/pkg/pathfinder"
)

func defaultOptions() options {
	return options{
		capacity:  pathfinder.DefaultCapacity,
		threshold: pathfinder.DefaultInitialThreshold,
		growth:    pathfinder.DefaultGrowthFactor,
		clearance: 60,
		floor:     30,
	}
}

// outAndBack flies north for n fixes and turns east.
func outAndBack(n int) []geo.Position {
	var fixes []geo.Position
	for i := 0; i < n; i++ {
		fixes = append(fixes, geo.FromDegrees(46+float64(i)*0.001, 7, 500))
	}
	for i := 1; i <= n; i++ {
		fixes = append(fixes, geo.FromDegrees(46+float64(n-1)*0.001, 7+float64(i)*0.001, 500))
	}
	return fixes
}

func TestReplay_CollapsesStraightLegs(t *testing.T) {
	fixes := outAndBack(20)
	res, err := replay(fixes, defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, len(fixes), res.Fixes)
	assert.Equal(t, len(fixes), res.Stats.Added)
	assert.Less(t, len(res.Path), len(fixes))
	assert.Equal(t, fixes[0], res.Path[0], "home is kept")
	assert.Equal(t, fixes[len(fixes)-1], res.Path[len(res.Path)-1], "tail is the last fix")
	assert.Nil(t, res.Plan)
}

func TestReplay_Plan(t *testing.T) {
	opts := defaultOptions()
	opts.plan = true
	res, err := replay(outAndBack(20), opts)
	require.NoError(t, err)
	require.NotNil(t, res.Plan)
	assert.NotEqual(t, pathfinder.ReturnEmpty, res.Plan.Kind)
}

func TestReplay_InvalidConfig(t *testing.T) {
	opts := defaultOptions()
	opts.capacity = 1
	_, err := replay(outAndBack(3), opts)
	assert.ErrorIs(t, err, pathfinder.ErrInvalidCapacity)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.gpx")
	require.NoError(t, gpx.FromPositions("in", "test", outAndBack(10)).Write(input))

	opts := defaultOptions()
	opts.input = input
	opts.output = filepath.Join(dir, "out.geojson")
	opts.gpxOut = filepath.Join(dir, "out.gpx")
	opts.plan = true
	require.NoError(t, run(opts))

	data, err := os.ReadFile(opts.output)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "input", fc.Features[0].Properties["role"])
	assert.Equal(t, "return", fc.Features[1].Properties["role"])

	back, err := gpx.Parse(opts.gpxOut)
	require.NoError(t, err)
	pts, err := back.Positions(0)
	require.NoError(t, err)
	assert.NotEmpty(t, pts)
}

func TestRun_MissingInput(t *testing.T) {
	opts := defaultOptions()
	opts.input = filepath.Join(t.TempDir(), "nope.gpx")
	opts.output = filepath.Join(t.TempDir(), "out.geojson")
	assert.Error(t, run(opts))
}
