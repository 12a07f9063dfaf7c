package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/trackerctl/internal/protocol/session"
)

// requiredTargets are the point groups every deployment measures; a
// config that drops one is a misconfiguration, not a preference.
var requiredTargets = []string{"CAM", "M1M3", "M2"}

type trackerSection struct {
	Host           string
	Port           int
	SimulationMode bool
}

type telescopeSection struct {
	Elevation float64
	Azimuth   float64
	CamRot    float64
}

type logSection struct {
	Profile string
	Level   string
}

// bridgeConfig is the trackerctl runtime configuration.
type bridgeConfig struct {
	Tracker   trackerSection
	Telescope telescopeSection
	Targets   []string
	Log       logSection
	Session   session.Config
}

// fileConfig is the trackerctl.toml shape. Durations are strings so the
// file can say "250ms" instead of nanosecond counts.
type fileConfig struct {
	Targets []string `toml:"targets"`

	Tracker struct {
		Host           string `toml:"host"`
		Port           int    `toml:"port"`
		SimulationMode bool   `toml:"simulation_mode"`
	} `toml:"tracker"`

	Telescope struct {
		Elevation float64 `toml:"elevation"`
		Azimuth   float64 `toml:"azimuth"`
		CamRot    float64 `toml:"cam_rot"`
	} `toml:"telescope"`

	Log struct {
		Profile string `toml:"profile"`
		Level   string `toml:"level"`
	} `toml:"log"`

	Session struct {
		DialTimeout        string `toml:"dial_timeout"`
		ReadTimeout        string `toml:"read_timeout"`
		WriteTimeout       string `toml:"write_timeout"`
		SlowReplyThreshold string `toml:"slow_reply_threshold"`
		ReadyPollMax       int    `toml:"ready_poll_max"`

		Backoff struct {
			InitialDelay string  `toml:"initial_delay"`
			Multiplier   float64 `toml:"multiplier"`
			MaxDelay     string  `toml:"max_delay"`
			Jitter       bool    `toml:"jitter"`
		} `toml:"backoff"`
	} `toml:"session"`
}

func defaultBridgeConfig() bridgeConfig {
	return bridgeConfig{
		Tracker:   trackerSection{Host: "127.0.0.1", Port: 50051},
		Telescope: telescopeSection{Elevation: 60},
		Targets:   append([]string(nil), requiredTargets...),
		Log:       logSection{Profile: "dev"},
		Session:   session.DefaultConfig(),
	}
}

// loadBridgeConfig overlays a TOML file onto the defaults. A blank path
// returns the defaults unchanged.
func loadBridgeConfig(path string) (bridgeConfig, error) {
	cfg := defaultBridgeConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return bridgeConfig{}, fmt.Errorf("load tracker config: %w", err)
	}

	if meta.IsDefined("targets") {
		cfg.Targets = normalizeTargets(raw.Targets)
	}
	if meta.IsDefined("tracker", "host") {
		cfg.Tracker.Host = strings.TrimSpace(raw.Tracker.Host)
	}
	if meta.IsDefined("tracker", "port") {
		cfg.Tracker.Port = raw.Tracker.Port
	}
	if meta.IsDefined("tracker", "simulation_mode") {
		cfg.Tracker.SimulationMode = raw.Tracker.SimulationMode
	}
	if meta.IsDefined("telescope", "elevation") {
		cfg.Telescope.Elevation = raw.Telescope.Elevation
	}
	if meta.IsDefined("telescope", "azimuth") {
		cfg.Telescope.Azimuth = raw.Telescope.Azimuth
	}
	if meta.IsDefined("telescope", "cam_rot") {
		cfg.Telescope.CamRot = raw.Telescope.CamRot
	}
	if meta.IsDefined("log", "profile") {
		cfg.Log.Profile = strings.TrimSpace(raw.Log.Profile)
	}
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}

	if err := overlayDuration(meta, &cfg.Session.DialTimeout, raw.Session.DialTimeout, "session", "dial_timeout"); err != nil {
		return bridgeConfig{}, err
	}
	if err := overlayDuration(meta, &cfg.Session.ReadTimeout, raw.Session.ReadTimeout, "session", "read_timeout"); err != nil {
		return bridgeConfig{}, err
	}
	if err := overlayDuration(meta, &cfg.Session.WriteTimeout, raw.Session.WriteTimeout, "session", "write_timeout"); err != nil {
		return bridgeConfig{}, err
	}
	if err := overlayDuration(meta, &cfg.Session.SlowReplyThreshold, raw.Session.SlowReplyThreshold, "session", "slow_reply_threshold"); err != nil {
		return bridgeConfig{}, err
	}
	if meta.IsDefined("session", "ready_poll_max") {
		cfg.Session.ReadyPollMax = raw.Session.ReadyPollMax
	}
	if err := overlayDuration(meta, &cfg.Session.Backoff.InitialDelay, raw.Session.Backoff.InitialDelay, "session", "backoff", "initial_delay"); err != nil {
		return bridgeConfig{}, err
	}
	if meta.IsDefined("session", "backoff", "multiplier") {
		cfg.Session.Backoff.Multiplier = raw.Session.Backoff.Multiplier
	}
	if err := overlayDuration(meta, &cfg.Session.Backoff.MaxDelay, raw.Session.Backoff.MaxDelay, "session", "backoff", "max_delay"); err != nil {
		return bridgeConfig{}, err
	}
	if meta.IsDefined("session", "backoff", "jitter") {
		cfg.Session.Backoff.Jitter = raw.Session.Backoff.Jitter
	}

	cfg.Session = cfg.Session.WithDefaults()
	if err := validateTargets(cfg.Targets); err != nil {
		return bridgeConfig{}, err
	}
	return cfg, nil
}

func overlayDuration(meta toml.MetaData, dst *time.Duration, raw string, key ...string) error {
	if !meta.IsDefined(key...) {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse %s: %w", strings.Join(key, "."), err)
	}
	*dst = d
	return nil
}

func normalizeTargets(in []string) []string {
	out := make([]string, 0, len(in))
	for _, target := range in {
		v := strings.TrimSpace(target)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func validateTargets(targets []string) error {
	for _, want := range requiredTargets {
		found := false
		for _, target := range targets {
			if strings.EqualFold(target, want) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("tracker config targets must include %s", want)
		}
	}
	return nil
}
