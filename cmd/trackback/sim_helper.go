package main

import (
	"fmt"
	"log/slog"

	"trackback/pkg/config"
	"trackback/pkg/sim/mocksim"
	"trackback/pkg/terrain"
)

func initializeSimClient(cfg *config.Config, elev terrain.ElevationGetter) (*mocksim.MockClient, error) {
	if cfg.Sim.Provider != "mock" {
		return nil, fmt.Errorf("unsupported sim provider %q", cfg.Sim.Provider)
	}
	slog.Info("Sim Source: Mock", "legs", len(cfg.Sim.Mock.Legs))
	mc := mocksim.NewClient(mocksim.ConfigFrom(&cfg.Sim.Mock))
	if _, ok := elev.(*terrain.ElevationProvider); ok {
		slog.Info("Injecting ETOPO1 elevation provider into Mock Sim")
		mc.SetElevationProvider(elev)
	}
	return mc, nil
}

// initTerrain opens the elevation grid. Without one the terrain is flat at
// the mock start altitude.
func initTerrain(cfg *config.Config) (terrain.ElevationGetter, func()) {
	flat := terrain.FlatProvider{Elevation: int16(cfg.Sim.Mock.StartAlt)}
	path := cfg.Terrain.ElevationFile
	if path == "" {
		slog.Info("Terrain: no elevation file, using flat terrain", "elevation_m", flat.Elevation)
		return flat, func() {}
	}
	provider, err := terrain.NewElevationProvider(path)
	if err != nil {
		slog.Warn("Terrain: ETOPO1 data not found or invalid, using flat terrain", "path", path, "error", err)
		return flat, func() {}
	}
	slog.Info("Terrain: ETOPO1 Loaded", "path", path)
	return provider, func() {
		if err := provider.Close(); err != nil {
			slog.Warn("Terrain: close failed", "error", err)
		}
	}
}
