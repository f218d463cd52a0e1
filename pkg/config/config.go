package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"trackback/pkg/pathfinder"
)

// EnvLogLevel overrides log.server.level without touching the file.
const EnvLogLevel = "TRACKBACK_LOG_LEVEL"

// Config holds the application configuration.
type Config struct {
	Path     PathConfig     `yaml:"path"`
	Return   ReturnConfig   `yaml:"return"`
	Triggers TriggersConfig `yaml:"triggers"`
	Ticker   TickerConfig   `yaml:"ticker"`
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Server   ServerConfig   `yaml:"server"`
	Sim      SimConfig      `yaml:"sim"`
	Terrain  TerrainConfig  `yaml:"terrain"`
}

// PathConfig holds the track recorder settings.
type PathConfig struct {
	Capacity         int     `yaml:"capacity"`
	InitialThreshold float64 `yaml:"initial_threshold"`
	GrowthFactor     float64 `yaml:"growth_factor"`
}

// Recorder converts the section into the recorder's own settings.
func (p PathConfig) Recorder() pathfinder.Config {
	return pathfinder.Config{
		Capacity:         p.Capacity,
		InitialThreshold: p.InitialThreshold,
		GrowthFactor:     p.GrowthFactor,
	}
}

// ReturnConfig holds the return flight settings.
type ReturnConfig struct {
	AcceptanceRadius Distance `yaml:"acceptance_radius"`
	Clearance        Distance `yaml:"clearance"`
	Floor            Distance `yaml:"floor"`
	TerrainStep      Distance `yaml:"terrain_step"`
	AutoAfter        Duration `yaml:"auto_after"` // 0 disables the automatic return
}

// TriggersConfig holds job scheduling thresholds.
type TriggersConfig struct {
	RecordDistance   Distance `yaml:"record_distance"`
	GuidanceInterval Duration `yaml:"guidance_interval"`
}

// TickerConfig holds ticker settings.
type TickerConfig struct {
	TelemetryLoop Duration `yaml:"telemetry_loop"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server LogSettings `yaml:"server"`
	Events LogSettings `yaml:"events"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path       string `yaml:"path"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path            string   `yaml:"path"`
	Retention       Duration `yaml:"retention"`        // ended flights older than this are pruned, 0 keeps all
	PersistInterval Duration `yaml:"persist_interval"` // how often the outbound track is saved
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// SimConfig holds settings for the vehicle connection.
type SimConfig struct {
	Provider string        `yaml:"provider"` // "mock"
	Mock     MockSimConfig `yaml:"mock"`
}

// MockSimConfig holds settings for the scripted mock vehicle.
type MockSimConfig struct {
	StartLat       float64   `yaml:"start_lat"`
	StartLon       float64   `yaml:"start_lon"`
	StartAlt       float64   `yaml:"start_alt"`
	StartHeading   float64   `yaml:"start_heading"`
	DurationParked Duration  `yaml:"duration_parked"`
	CruiseSpeed    float64   `yaml:"cruise_speed"` // m/s
	CruiseAltitude Distance  `yaml:"cruise_altitude"`
	ClimbRate      float64   `yaml:"climb_rate"` // m/s
	TurnRate       float64   `yaml:"turn_rate"`  // deg/s
	Legs           []MockLeg `yaml:"legs"`
}

// MockLeg is one scripted segment of the outbound flight.
type MockLeg struct {
	Heading  float64  `yaml:"heading"`
	Distance Distance `yaml:"distance"`
	Orbits   float64  `yaml:"orbits"` // full circles flown at the end of the leg
}

// TerrainConfig holds terrain elevation settings.
type TerrainConfig struct {
	ElevationFile string `yaml:"elevation_file"` // empty means flat terrain
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Path: PathConfig{
			Capacity:         pathfinder.DefaultCapacity,
			InitialThreshold: pathfinder.DefaultInitialThreshold,
			GrowthFactor:     pathfinder.DefaultGrowthFactor,
		},
		Return: ReturnConfig{
			AcceptanceRadius: Distance(60),
			Clearance:        Distance(60),
			Floor:            Distance(30),
			TerrainStep:      Distance(250),
		},
		Triggers: TriggersConfig{
			RecordDistance:   Distance(50),
			GuidanceInterval: Duration(500 * time.Millisecond),
		},
		Ticker: TickerConfig{
			TelemetryLoop: Duration(250 * time.Millisecond),
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:       "./logs/server.log",
				Level:      "INFO",
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 14,
			},
			Events: LogSettings{
				Path:  "./logs/events.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path:            "./data/trackback.db",
			Retention:       Duration(90 * Day),
			PersistInterval: Duration(30 * time.Second),
		},
		Server: ServerConfig{
			Address: "127.0.0.1:1927",
		},
		Sim: SimConfig{
			Provider: "mock",
			Mock: MockSimConfig{
				StartLat:       47.4582,
				StartLon:       8.5555,
				StartAlt:       432.0,
				StartHeading:   280.0,
				DurationParked: Duration(10 * time.Second),
				CruiseSpeed:    25.0,
				CruiseAltitude: Distance(150),
				ClimbRate:      3.0,
				TurnRate:       12.0,
				Legs: []MockLeg{
					{Heading: 280, Distance: Distance(3000)},
					{Heading: 10, Distance: Distance(2000), Orbits: 1},
					{Heading: 100, Distance: Distance(2500)},
					{Heading: 190, Distance: Distance(3500)},
					{Heading: 300, Distance: Distance(4000), Orbits: 2},
				},
			},
		},
		Terrain: TerrainConfig{
			ElevationFile: "",
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Path.Recorder().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("path: %w", err))
	}
	if c.Return.AcceptanceRadius <= 0 {
		errs = append(errs, errors.New("return.acceptance_radius must be positive"))
	}
	if c.Return.Clearance < 0 || c.Return.Floor < 0 {
		errs = append(errs, errors.New("return.clearance and return.floor must not be negative"))
	}
	if c.Return.TerrainStep <= 0 {
		errs = append(errs, errors.New("return.terrain_step must be positive"))
	}
	if c.Triggers.RecordDistance <= 0 {
		errs = append(errs, errors.New("triggers.record_distance must be positive"))
	}
	if c.Triggers.GuidanceInterval <= 0 || c.Ticker.TelemetryLoop <= 0 {
		errs = append(errs, errors.New("triggers.guidance_interval and ticker.telemetry_loop must be positive"))
	}
	if c.Sim.Provider != "mock" {
		errs = append(errs, fmt.Errorf("sim.provider %q is not supported", c.Sim.Provider))
	}
	return errors.Join(errs...)
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT save back to disk.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Log.Server.Level = level
	}
	cfg.DB.Path = expandPath(cfg.DB.Path)
	cfg.Terrain.ElevationFile = expandPath(cfg.Terrain.ElevationFile)
	cfg.Log.Server.Path = expandPath(cfg.Log.Server.Path)
	cfg.Log.Events.Path = expandPath(cfg.Log.Events.Path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

var winEnvVar = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_]*)%`)

// expandPath resolves $VAR, ${VAR} and %VAR% references.
func expandPath(p string) string {
	if p == "" {
		return p
	}
	p = winEnvVar.ReplaceAllStringFunc(p, func(m string) string {
		return os.Getenv(strings.Trim(m, "%"))
	})
	return os.ExpandEnv(p)
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Trackback Configuration
# -----------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), nm (nautical miles), ft (feet)

`)
	data = append(header, data...)

	reProvider := regexp.MustCompile(`(?m)^(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: mock\n${1}provider:"))

	reGrowth := regexp.MustCompile(`(?m)^(\s+)growth_factor:`)
	data = reGrowth.ReplaceAll(data, []byte("${1}# Threshold multiplier per prune round, must be > 1\n${1}growth_factor:"))

	reElevation := regexp.MustCompile(`(?m)^(\s+)elevation_file:`)
	data = reElevation.ReplaceAll(data, []byte("${1}# ETOPO1 ice surface grid (int16, 21601x10801); empty for flat terrain\n${1}elevation_file:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
