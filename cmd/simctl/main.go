package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/danmuck/trackerctl/internal/config"
	"github.com/danmuck/trackerctl/internal/logging"
	"github.com/danmuck/trackerctl/internal/simulator"
)

func main() {
	configPath := flag.String("config", "", "path to simctl TOML config (blank = built-in defaults)")
	deviceAddr := flag.String("device-addr", "", "override device listen address")
	adminAddr := flag.String("admin-addr", "", "override admin listen address")
	flag.Parse()

	if err := run(*configPath, *deviceAddr, *adminAddr); err != nil {
		fmt.Fprintf(os.Stderr, "simctl: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, deviceAddr, adminAddr string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	applyOverrides(&cfg, deviceAddr, adminAddr)

	profile, _ := logging.ParseProfile(cfg.LogProfile)
	log := logging.Configure(profile)
	applyLevel(log, cfg.LogLevel)

	layout, err := loadLayout(configPath, cfg)
	if err != nil {
		return err
	}

	ctrl := simulator.NewController(simulator.Config{
		MeasurementDuration: cfg.MeasurementDuration,
		LaserWarmupDuration: cfg.LaserWarmupDuration,
		Seed:                cfg.Seed,
		RandomizeOnStart:    cfg.RandomizeOnStart,
		Layout:              layout,
	})
	device := simulator.NewServer(simulator.ServerConfig{ListenAddr: cfg.DeviceAddr}, ctrl)
	admin := simulator.NewAdminServer(simulator.AdminConfig{
		ListenAddr:  cfg.AdminAddr,
		CORSOrigins: cfg.CORSOrigins,
		Token:       cfg.AdminToken,
	}, ctrl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.DeviceAddr)
	if err != nil {
		return fmt.Errorf("device listen: %w", err)
	}
	log.Info().
		Str("device_addr", ln.Addr().String()).
		Str("admin_addr", cfg.AdminAddr).
		Int("bodies", len(layout)).
		Msg("simctl running")

	deviceErr := make(chan error, 1)
	go func() { deviceErr <- device.Serve(ctx, ln) }()
	adminErr := make(chan error, 1)
	go func() { adminErr <- admin.Serve(ctx) }()

	select {
	case err := <-deviceErr:
		stop()
		if err != nil {
			return err
		}
		return <-adminErr
	case err := <-adminErr:
		stop()
		if err != nil {
			return err
		}
		return <-deviceErr
	}
}

func loadConfig(path string) (config.SimulatorConfig, error) {
	if strings.TrimSpace(path) == "" {
		return config.DefaultSimulatorConfig(), nil
	}
	return config.LoadSimulatorConfig(path)
}

func applyOverrides(cfg *config.SimulatorConfig, deviceAddr, adminAddr string) {
	if v := strings.TrimSpace(deviceAddr); v != "" {
		cfg.DeviceAddr = v
	}
	if v := strings.TrimSpace(adminAddr); v != "" {
		cfg.AdminAddr = v
	}
}

// loadLayout resolves the bodies file relative to the config file's
// directory, falling back to the built-in layout when none is set.
func loadLayout(configPath string, cfg config.SimulatorConfig) ([]simulator.BodySite, error) {
	spec := config.DefaultBodies()
	if cfg.BodiesFile != "" {
		path := cfg.BodiesFile
		if !filepath.IsAbs(path) && strings.TrimSpace(configPath) != "" {
			path = filepath.Join(filepath.Dir(configPath), path)
		}
		loaded, err := config.LoadBodies(path)
		if err != nil {
			return nil, err
		}
		spec = loaded
	}
	return layoutFromSpec(spec), nil
}

func layoutFromSpec(spec config.BodiesSpec) []simulator.BodySite {
	bodies, poses := config.GeometryBodies(spec.Bodies)
	sites := make([]simulator.BodySite, 0, len(bodies))
	for i := range bodies {
		sites = append(sites, simulator.BodySite{Body: bodies[i], Nominal: poses[i]})
	}
	return sites
}

func applyLevel(log zerolog.Logger, level string) {
	if strings.TrimSpace(level) == "" {
		return
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, keeping profile default")
		return
	}
	zerolog.SetGlobalLevel(lvl)
}
