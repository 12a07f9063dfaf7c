package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/trackerctl/internal/config"
)

func TestLoadConfigBlankPathUsesDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DeviceAddr != ":50051" || cfg.AdminAddr != ":8800" {
		t.Fatalf("unexpected addrs: %q %q", cfg.DeviceAddr, cfg.AdminAddr)
	}
	if cfg.MeasurementDuration != 2*time.Second {
		t.Fatalf("unexpected measurement duration: %v", cfg.MeasurementDuration)
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.DefaultSimulatorConfig()
	applyOverrides(&cfg, "127.0.0.1:0", "")
	if cfg.DeviceAddr != "127.0.0.1:0" {
		t.Fatalf("device override not applied: %q", cfg.DeviceAddr)
	}
	if cfg.AdminAddr != ":8800" {
		t.Fatalf("admin addr should be untouched: %q", cfg.AdminAddr)
	}
}

func TestLoadLayoutRelativeBodiesFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "simctl.toml")
	bodies := `
bodies:
  - name: dome
    radius: 2.5
    fiducials: 4
    origin: {x: 0.0, y: 0.0, z: 12.0}
`
	if err := os.WriteFile(filepath.Join(dir, "bodies.yaml"), []byte(bodies), 0o644); err != nil {
		t.Fatalf("write bodies: %v", err)
	}

	cfg := config.DefaultSimulatorConfig()
	cfg.BodiesFile = "bodies.yaml"
	layout, err := loadLayout(configPath, cfg)
	if err != nil {
		t.Fatalf("load layout: %v", err)
	}
	if len(layout) != 1 {
		t.Fatalf("unexpected layout size: %d", len(layout))
	}
	if layout[0].Body.Name != "dome" || len(layout[0].Body.Targets) != 4 {
		t.Fatalf("unexpected body: %+v", layout[0].Body)
	}
	if layout[0].Nominal.Origin.Z != 12.0 {
		t.Fatalf("unexpected nominal: %+v", layout[0].Nominal)
	}
}

func TestLoadLayoutDefault(t *testing.T) {
	layout, err := loadLayout("", config.DefaultSimulatorConfig())
	if err != nil {
		t.Fatalf("load layout: %v", err)
	}
	if len(layout) != 3 {
		t.Fatalf("unexpected layout size: %d", len(layout))
	}
	if layout[1].Body.Name != "m2" || layout[1].Nominal.Origin.Z != 3.0 {
		t.Fatalf("unexpected m2 site: %+v", layout[1])
	}
}
