// Command gpxreplay feeds a recorded GPX track through the path recorder and
// writes the kept points, and optionally the planned return, as GeoJSON.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"trackback/pkg/geo"
	"trackback/pkg/gpx"
	"trackback/pkg/logging"
	"trackback/pkg/pathfinder"
	"trackback/pkg/terrain"
)

type options struct {
	input     string
	output    string
	gpxOut    string
	capacity  int
	threshold float64
	growth    float64
	plan      bool
	ground    float64
	clearance float64
	floor     float64
	defAlt    float64
}

func main() {
	var opts options
	flag.StringVar(&opts.input, "input", "", "Path to input .gpx file")
	flag.StringVar(&opts.output, "output", "", "Path to output .geojson file")
	flag.StringVar(&opts.gpxOut, "gpx-out", "", "Optional path for the resulting track as .gpx")
	flag.IntVar(&opts.capacity, "capacity", pathfinder.DefaultCapacity, "Recorder capacity (points)")
	flag.Float64Var(&opts.threshold, "threshold", pathfinder.DefaultInitialThreshold, "Initial significance threshold")
	flag.Float64Var(&opts.growth, "growth", pathfinder.DefaultGrowthFactor, "Threshold growth factor")
	flag.BoolVar(&opts.plan, "return", false, "Plan the return flight after the replay")
	flag.Float64Var(&opts.ground, "ground", 0, "Flat terrain elevation (m) used for return altitudes")
	flag.Float64Var(&opts.clearance, "clearance", 60, "Terrain clearance (m) on unverified legs")
	flag.Float64Var(&opts.floor, "floor", 30, "Minimum height above home (m) on unverified legs")
	flag.Float64Var(&opts.defAlt, "default-alt", 0, "Altitude (m) for points without elevation")
	verbose := flag.Bool("v", false, "Log every loop cut and prune round")
	flag.Parse()

	if opts.input == "" || opts.output == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "Input and output paths are required")
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
		logging.SetTrace(true)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(opts); err != nil {
		slog.Error("Replay failed", "error", err)
		os.Exit(1)
	}
}

// result is what a replay produced.
type result struct {
	Fixes int
	Path  []geo.Position
	Stats pathfinder.Stats
	Plan  *pathfinder.ReturnPlan
}

func run(opts options) error {
	doc, err := gpx.Parse(opts.input)
	if err != nil {
		return err
	}
	fixes, err := doc.Positions(opts.defAlt)
	if err != nil {
		return err
	}

	res, err := replay(fixes, opts)
	if err != nil {
		return err
	}

	slog.Info("Replay finished",
		"fixes", res.Fixes,
		"kept", len(res.Path),
		"absorbed", res.Stats.Absorbed,
		"pruned", res.Stats.Pruned,
		"loop_cuts", res.Stats.LoopCuts,
		"duration", doc.Duration())
	if res.Plan != nil {
		slog.Info("Return planned",
			"kind", res.Plan.Kind,
			"trip_m", res.Plan.TripDistance,
			"direct_m", res.Plan.DirectDistance,
			"unsafe_m", res.Plan.UnsafeDistance,
			"removed", res.Plan.Removed)
	}

	if err := writeGeoJSON(opts.output, fixes, res); err != nil {
		return err
	}
	if opts.gpxOut != "" {
		if err := gpx.FromPositions("trackback", "trackback gpxreplay", res.Path).Write(opts.gpxOut); err != nil {
			return err
		}
	}
	return nil
}

func replay(fixes []geo.Position, opts options) (*result, error) {
	path, err := pathfinder.New(pathfinder.Config{
		Capacity:         opts.capacity,
		InitialThreshold: opts.threshold,
		GrowthFactor:     opts.growth,
	}, slog.With("component", "pathfinder"))
	if err != nil {
		return nil, err
	}

	for _, f := range fixes {
		path.Add(f.Lat, f.Lng, f.Alt)
	}

	res := &result{Fixes: len(fixes)}
	if opts.plan {
		home, _ := path.Home()
		policy := terrain.NewReturnAltitude(terrain.FlatProvider{Elevation: int16(opts.ground)}, home,
			opts.clearance, opts.floor, 0)
		plan := path.PrepareReturn(policy.Lookup)
		res.Plan = &plan
	}
	res.Path = path.Positions()
	res.Stats = path.Stats()
	return res, nil
}

func writeGeoJSON(filename string, fixes []geo.Position, res *result) error {
	fc := geojson.NewFeatureCollection()

	raw := make(orb.LineString, 0, len(fixes))
	for _, f := range fixes {
		raw = append(raw, f.Orb())
	}
	in := geojson.NewFeature(raw)
	in.Properties["role"] = "input"
	in.Properties["count"] = len(fixes)
	fc.Append(in)

	kept := make(orb.LineString, 0, len(res.Path))
	alts := make([]float64, 0, len(res.Path))
	for _, p := range res.Path {
		kept = append(kept, p.Orb())
		alts = append(alts, p.AltMeters())
	}
	out := geojson.NewFeature(kept)
	out.Properties["role"] = "recorded"
	if res.Plan != nil {
		out.Properties["role"] = "return"
		out.Properties["plan"] = string(res.Plan.Kind)
		out.Properties["trip_distance"] = res.Plan.TripDistance
	}
	out.Properties["count"] = len(res.Path)
	out.Properties["altitudes"] = alts
	fc.Append(out)

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
