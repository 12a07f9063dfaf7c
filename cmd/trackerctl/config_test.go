package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/trackerctl/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trackerctl.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadBridgeConfigBlankPath(t *testing.T) {
	cfg, err := loadBridgeConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Tracker.Host != "127.0.0.1" || cfg.Tracker.Port != 50051 {
		t.Fatalf("unexpected tracker defaults: %+v", cfg.Tracker)
	}
	if cfg.Tracker.SimulationMode {
		t.Fatalf("simulation mode should default off")
	}
	if cfg.Telescope.Elevation != 60 {
		t.Fatalf("unexpected stow elevation: %v", cfg.Telescope.Elevation)
	}
	if len(cfg.Targets) != 3 {
		t.Fatalf("unexpected targets: %+v", cfg.Targets)
	}
	if cfg.Session.ReadTimeout != 60*time.Second {
		t.Fatalf("unexpected read timeout: %v", cfg.Session.ReadTimeout)
	}
}

func TestLoadBridgeConfigPartialOverlay(t *testing.T) {
	path := writeConfig(t, `
[tracker]
port = 6000

[session]
read_timeout = "90s"

[session.backoff]
jitter = false
`)
	cfg, err := loadBridgeConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Tracker.Port != 6000 {
		t.Fatalf("port overlay not applied: %d", cfg.Tracker.Port)
	}
	if cfg.Tracker.Host != "127.0.0.1" {
		t.Fatalf("host default lost: %q", cfg.Tracker.Host)
	}
	if cfg.Session.ReadTimeout != 90*time.Second {
		t.Fatalf("read timeout overlay not applied: %v", cfg.Session.ReadTimeout)
	}
	if cfg.Session.DialTimeout != 5*time.Second {
		t.Fatalf("dial timeout default lost: %v", cfg.Session.DialTimeout)
	}
	if cfg.Session.Backoff.Jitter {
		t.Fatalf("jitter overlay not applied")
	}
	if cfg.Session.Backoff.InitialDelay != 250*time.Millisecond {
		t.Fatalf("backoff default lost: %v", cfg.Session.Backoff.InitialDelay)
	}
}

func TestLoadBridgeConfigTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trackerctl.toml")
	if err := config.WriteTemplate(path, "tracker", false); err != nil {
		t.Fatalf("write template: %v", err)
	}

	cfg, err := loadBridgeConfig(path)
	if err != nil {
		t.Fatalf("template does not load: %v", err)
	}
	if cfg.Tracker.Port != 50051 || !cfg.Tracker.SimulationMode {
		t.Fatalf("unexpected tracker section: %+v", cfg.Tracker)
	}
	if cfg.Telescope.Elevation != 60 {
		t.Fatalf("unexpected telescope section: %+v", cfg.Telescope)
	}
	if cfg.Log.Profile != "dev" {
		t.Fatalf("unexpected log section: %+v", cfg.Log)
	}
	if cfg.Session.Backoff.InitialDelay != 250*time.Millisecond {
		t.Fatalf("unexpected backoff: %+v", cfg.Session.Backoff)
	}
	if cfg.Session.ReadyPollMax != 10 {
		t.Fatalf("unexpected ready poll max: %d", cfg.Session.ReadyPollMax)
	}
}

func TestLoadBridgeConfigMissingRequiredTarget(t *testing.T) {
	path := writeConfig(t, `targets = ["CAM", "M2"]`)
	if _, err := loadBridgeConfig(path); err == nil {
		t.Fatalf("expected required target error")
	}
}

func TestLoadBridgeConfigTargetsCaseInsensitive(t *testing.T) {
	path := writeConfig(t, `targets = ["cam", "m1m3", "m2", "dome"]`)
	cfg, err := loadBridgeConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.Targets) != 4 {
		t.Fatalf("unexpected targets: %+v", cfg.Targets)
	}
}

func TestLoadBridgeConfigBadDuration(t *testing.T) {
	path := writeConfig(t, `
[session]
read_timeout = "soon"
`)
	if _, err := loadBridgeConfig(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestParseTelescopeValue(t *testing.T) {
	elevation, azimuth, camRot, err := parseTelescopeValue("30;120.5;-7.5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if elevation != 30 || azimuth != 120.5 || camRot != -7.5 {
		t.Fatalf("unexpected values: %v %v %v", elevation, azimuth, camRot)
	}
	if _, _, _, err := parseTelescopeValue("30;120"); err == nil {
		t.Fatalf("expected arity error")
	}
	if _, _, _, err := parseTelescopeValue("a;b;c"); err == nil {
		t.Fatalf("expected float error")
	}
}

func TestSplitPoints(t *testing.T) {
	points := splitPoints("M2_P1, M2_P2")
	if len(points) != 2 || points[0] != "M2_P1" || points[1] != "M2_P2" {
		t.Fatalf("unexpected points: %+v", points)
	}
	if got := splitPoints(""); len(got) != 0 {
		t.Fatalf("expected no points, got %+v", got)
	}
}
