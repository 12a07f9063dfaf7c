package logging

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel   = "TRACKERCTL_LOG_LEVEL"
	EnvLogFormat  = "TRACKERCTL_LOG_FORMAT"
	EnvLogNoColor = "TRACKERCTL_LOG_NOCOLOR"
)

// Profile selects a process-level logging preset. Environment variables
// override the preset's level and output format.
type Profile int

const (
	ProfileService Profile = iota
	ProfileDev
	ProfileTest
	ProfileQuiet
)

// ParseProfile maps a profile name from a config file to a Profile.
// Unknown names report false.
func ParseProfile(raw string) (Profile, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "service", "prod", "production":
		return ProfileService, true
	case "dev", "development":
		return ProfileDev, true
	case "test":
		return ProfileTest, true
	case "quiet":
		return ProfileQuiet, true
	default:
		return ProfileService, false
	}
}

type config struct {
	Level     zerolog.Level
	Console   bool
	Timestamp bool
	NoColor   bool
}

var (
	configureOnce sync.Once
	root          zerolog.Logger
)

func ConfigureService() zerolog.Logger { return Configure(ProfileService) }

func ConfigureDev() zerolog.Logger { return Configure(ProfileDev) }

func ConfigureTests() zerolog.Logger { return Configure(ProfileTest) }

// Configure builds the process root logger once and installs it as the
// zerolog global. Later calls return the existing root regardless of
// profile.
func Configure(profile Profile) zerolog.Logger {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		applyEnvOverrides(&cfg)
		root = build(cfg)
		log.Logger = root
		zerolog.SetGlobalLevel(cfg.Level)
	})
	return root
}

// Component derives a child logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return root.With().Str("component", name).Logger()
}

func defaultConfig(profile Profile) config {
	switch profile {
	case ProfileDev:
		return config{Level: zerolog.DebugLevel, Console: true, Timestamp: true}
	case ProfileTest:
		return config{Level: zerolog.DebugLevel, Console: true, Timestamp: false}
	case ProfileQuiet:
		return config{Level: zerolog.ErrorLevel, Console: false, Timestamp: true}
	default:
		return config{Level: zerolog.InfoLevel, Console: false, Timestamp: true}
	}
}

func build(cfg config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.Console {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.NoColor,
		}
		logger = zerolog.New(output)
	} else {
		logger = zerolog.New(os.Stdout)
	}
	ctx := logger.Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

func applyEnvOverrides(cfg *config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogFormat))) {
	case "console", "text":
		cfg.Console = true
	case "json":
		cfg.Console = false
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
