package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"trackback/internal/api"
	"trackback/pkg/config"
	"trackback/pkg/core"
	"trackback/pkg/db"
	"trackback/pkg/db/maintenance"
	"trackback/pkg/logging"
	"trackback/pkg/pathfinder"
	"trackback/pkg/probe"
	"trackback/pkg/sim"
	"trackback/pkg/store"
	"trackback/pkg/terrain"
	"trackback/pkg/version"
)

const (
	defaultConfigPath = "configs/trackback.yaml"
	envConfigPath     = "TRACKBACK_CONFIG"
)

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", "", "Path to the config file (default $"+envConfigPath+" or "+defaultConfigPath+")")
)

func main() {
	// A missing .env is fine; variables may come from the environment.
	_ = godotenv.Load()
	flag.Parse()

	path := resolveConfigPath(*configPath)

	if *initConfig {
		if err := config.GenerateDefault(path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", path)
		return
	}

	if err := run(context.Background(), path); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv(envConfigPath); p != "" {
		return p
	}
	return defaultConfigPath
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Trackback started", "version", version.Version, "config", configPath)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := maintenance.Run(ctx, st, dbConn, appCfg.DB.Retention.Std()); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	elev, closeTerrain := initTerrain(appCfg)
	defer closeTerrain()

	simClient, err := initializeSimClient(appCfg, elev)
	if err != nil {
		return fmt.Errorf("failed to initialize sim client: %w", err)
	}
	defer simClient.Close()

	if err := startupChecks(ctx, appCfg, dbConn, simClient, elev); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	prov := config.NewProvider(appCfg, st)
	path, err := pathfinder.New(appCfg.Path.Recorder(), slog.With("component", "pathfinder"))
	if err != nil {
		return fmt.Errorf("failed to create path recorder: %w", err)
	}
	nav := core.NewNavigator(path, prov, st, elev, simClient)

	// Telemetry Handler (must be created before scheduler to receive updates)
	telH := api.NewTelemetryHandler()

	sched := setupScheduler(appCfg, prov, simClient, nav, telH)
	go sched.Start(ctx)

	core.NewPathPersistenceJob(st, nav, appCfg.DB.PersistInterval.Std()).Start(ctx)

	return runServer(ctx, appCfg, prov, st, nav, telH)
}

func initDB(appCfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func startupChecks(ctx context.Context, cfg *config.Config, dbConn *db.DB, simClient sim.Client, elev terrain.ElevationGetter) error {
	probes := []probe.Probe{
		{Name: "Database", Critical: true, Check: dbConn.PingContext},
		{Name: "Vehicle link", Critical: true, Check: func(ctx context.Context) error {
			_, err := simClient.GetTelemetry(ctx)
			return err
		}},
		{Name: "Terrain (ETOPO1)", Check: func(ctx context.Context) error {
			if _, ok := elev.(*terrain.ElevationProvider); !ok {
				return errors.New("no elevation file, terrain is flat")
			}
			_, err := elev.GetElevation(cfg.Sim.Mock.StartLat, cfg.Sim.Mock.StartLon)
			return err
		}},
	}
	return probe.Verify(probe.Run(ctx, probes, probe.DefaultTimeout))
}

func setupScheduler(cfg *config.Config, prov config.Provider, simClient sim.Client, nav *core.Navigator, telH *api.TelemetryHandler) *core.Scheduler {
	sched := core.NewScheduler(prov, simClient, nav, telH)

	sched.AddJob(core.NewRecordingJob(nav, cfg.Triggers.RecordDistance.Meters()))
	sched.AddJob(core.NewGuidanceJob(nav, cfg.Triggers.GuidanceInterval.Std()))
	sched.AddJob(core.NewAutoReturnJob(nav, prov))

	// A recorder reset also restarts the job triggers.
	nav.OnReset(sched)
	return sched
}

func runServer(ctx context.Context, cfg *config.Config, prov config.Provider, st store.Store, nav *core.Navigator, telH *api.TelemetryHandler) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address, api.Handlers{
		Telemetry: telH,
		Navigator: api.NewNavigatorHandler(nav),
		Flights:   api.NewFlightHandler(st),
		Config:    api.NewConfigHandler(st, prov),
		Stream:    api.NewStreamHandler(nav),
	}, shutdownFunc)

	srv.Handler = loggingMiddleware(srv.Handler)
	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.TraceDefault("Request processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
