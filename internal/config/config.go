package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/danmuck/trackerctl/internal/logging"
)

// SimulatorConfig is the simctl runtime configuration. DeviceAddr serves
// the instrument protocol; AdminAddr serves the HTTP admin surface.
type SimulatorConfig struct {
	DeviceAddr          string
	AdminAddr           string
	AdminToken          string
	MeasurementDuration time.Duration
	LaserWarmupDuration time.Duration
	BodiesFile          string
	Seed                int64
	RandomizeOnStart    bool
	LogProfile          string
	LogLevel            string
	CORSOrigins         []string
}

// fileSimulatorConfig is the TOML shape of SimulatorConfig. Durations
// are strings so config files can say "2s" instead of nanosecond counts.
type fileSimulatorConfig struct {
	DeviceAddr          string   `toml:"device_addr"`
	AdminAddr           string   `toml:"admin_addr"`
	AdminToken          string   `toml:"admin_token"`
	MeasurementDuration string   `toml:"measurement_duration"`
	LaserWarmupDuration string   `toml:"laser_warmup_duration"`
	BodiesFile          string   `toml:"bodies_file"`
	Seed                int64    `toml:"seed"`
	RandomizeOnStart    bool     `toml:"randomize_on_start"`
	LogProfile          string   `toml:"log_profile"`
	LogLevel            string   `toml:"log_level"`
	CORSOrigins         []string `toml:"cors_origins"`
}

// BodySpec defines one rigid body: its fiducial circle and the pose it
// holds when perfectly aligned. Distances are meters, rotations degrees.
type BodySpec struct {
	Name      string       `yaml:"name"`
	Radius    float64      `yaml:"radius"`
	Fiducials int          `yaml:"fiducials"`
	Origin    VectorSpec   `yaml:"origin"`
	Rotation  RotationSpec `yaml:"rotation"`
}

type VectorSpec struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

type RotationSpec struct {
	U float64 `yaml:"u"`
	V float64 `yaml:"v"`
	W float64 `yaml:"w"`
}

// BodiesSpec is the YAML body layout file.
type BodiesSpec struct {
	Bodies []BodySpec `yaml:"bodies"`
}

// DefaultSimulatorConfig returns the built-in simctl settings.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		DeviceAddr:          ":50051",
		AdminAddr:           ":8800",
		MeasurementDuration: 2 * time.Second,
		LaserWarmupDuration: 60 * time.Second,
		LogProfile:          "service",
	}
}

// LoadSimulatorConfig reads a simctl TOML file, fills defaults for
// omitted fields and validates the result.
func LoadSimulatorConfig(path string) (SimulatorConfig, error) {
	var raw fileSimulatorConfig
	if err := loadToml(path, &raw); err != nil {
		return SimulatorConfig{}, err
	}
	cfg := DefaultSimulatorConfig()
	if v := strings.TrimSpace(raw.DeviceAddr); v != "" {
		cfg.DeviceAddr = v
	}
	if v := strings.TrimSpace(raw.AdminAddr); v != "" {
		cfg.AdminAddr = v
	}
	if v := strings.TrimSpace(raw.LogProfile); v != "" {
		cfg.LogProfile = v
	}
	cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	cfg.BodiesFile = strings.TrimSpace(raw.BodiesFile)
	cfg.Seed = raw.Seed
	cfg.RandomizeOnStart = raw.RandomizeOnStart
	cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	cfg.CORSOrigins = raw.CORSOrigins
	var err error
	cfg.MeasurementDuration, err = parseDuration(path, "measurement_duration", raw.MeasurementDuration, cfg.MeasurementDuration)
	if err != nil {
		return SimulatorConfig{}, err
	}
	cfg.LaserWarmupDuration, err = parseDuration(path, "laser_warmup_duration", raw.LaserWarmupDuration, cfg.LaserWarmupDuration)
	if err != nil {
		return SimulatorConfig{}, err
	}
	if err := ValidateSimulatorConfig(cfg); err != nil {
		return SimulatorConfig{}, err
	}
	return cfg, nil
}

// LoadBodies reads a YAML body layout file and validates it.
func LoadBodies(path string) (BodiesSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BodiesSpec{}, fmt.Errorf("bodies load failed (%s): %w", path, err)
	}
	var spec BodiesSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return BodiesSpec{}, fmt.Errorf("bodies parse failed (%s): %w", path, err)
	}
	if err := ValidateBodies(spec); err != nil {
		return BodiesSpec{}, err
	}
	return spec, nil
}

// DefaultBodies returns the built-in telescope layout: the primary
// mirror cell at the origin, the secondary mirror and the camera above
// it on the optical axis.
func DefaultBodies() BodiesSpec {
	return BodiesSpec{Bodies: []BodySpec{
		{Name: "m1m3", Radius: 8.40, Fiducials: 3},
		{Name: "m2", Radius: 1.74, Fiducials: 3, Origin: VectorSpec{Z: 3.0}},
		{Name: "cam", Radius: 0.85, Fiducials: 3, Origin: VectorSpec{Z: 2.0}},
	}}
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func parseDuration(path, key, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config parse failed (%s): %s: %w", path, key, err)
	}
	return d, nil
}

func ValidateSimulatorConfig(cfg SimulatorConfig) error {
	if strings.TrimSpace(cfg.DeviceAddr) == "" {
		return fmt.Errorf("simulator config missing device_addr")
	}
	if strings.TrimSpace(cfg.AdminAddr) == "" {
		return fmt.Errorf("simulator config missing admin_addr")
	}
	if cfg.MeasurementDuration <= 0 {
		return fmt.Errorf("simulator config measurement_duration must be positive")
	}
	if cfg.LaserWarmupDuration <= 0 {
		return fmt.Errorf("simulator config laser_warmup_duration must be positive")
	}
	if _, ok := logging.ParseProfile(cfg.LogProfile); !ok {
		return fmt.Errorf("simulator config unknown log_profile: %q", cfg.LogProfile)
	}
	return nil
}

func ValidateBodies(spec BodiesSpec) error {
	if len(spec.Bodies) == 0 {
		return fmt.Errorf("bodies config requires at least one body")
	}
	seen := make(map[string]struct{}, len(spec.Bodies))
	for i, body := range spec.Bodies {
		name := strings.ToLower(strings.TrimSpace(body.Name))
		if name == "" {
			return fmt.Errorf("body[%d] missing name", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("body[%d] duplicate name: %s", i, body.Name)
		}
		seen[name] = struct{}{}
		if body.Radius <= 0 {
			return fmt.Errorf("body %s radius must be positive", body.Name)
		}
		if body.Fiducials < 0 {
			return fmt.Errorf("body %s fiducials must not be negative", body.Name)
		}
	}
	return nil
}
