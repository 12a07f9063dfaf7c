package session

import (
	"errors"
	"time"
)

var (
	ErrNonPositiveTimeout  = errors.New("session: timeouts must be positive")
	ErrInvalidReadyPollMax = errors.New("session: ready poll max must be positive")
	ErrInvalidBackoff      = errors.New("session: backoff initial delay must be positive")
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines exchange reliability defaults for one client session.
// ReadTimeout bounds a single reply; measurement plans answer only after
// the instrument finishes, so it is much longer than the dial timeout.
type Config struct {
	DialTimeout        time.Duration
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	SlowReplyThreshold time.Duration
	ReadyPollMax       int
	Backoff            BackoffConfig
}

// DefaultConfig returns the session defaults.
func DefaultConfig() Config {
	return Config{
		DialTimeout:        5 * time.Second,
		ReadTimeout:        60 * time.Second,
		WriteTimeout:       15 * time.Second,
		SlowReplyThreshold: 5 * time.Second,
		ReadyPollMax:       10,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.DialTimeout == 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.SlowReplyThreshold == 0 {
		c.SlowReplyThreshold = def.SlowReplyThreshold
	}
	if c.ReadyPollMax == 0 {
		c.ReadyPollMax = def.ReadyPollMax
	}
	if c.Backoff.InitialDelay == 0 {
		c.Backoff.InitialDelay = def.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier == 0 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay == 0 {
		c.Backoff.MaxDelay = def.Backoff.MaxDelay
	}
	return c
}

// Validate rejects configurations that cannot drive an exchange.
func (c Config) Validate() error {
	if c.DialTimeout <= 0 || c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return ErrNonPositiveTimeout
	}
	if c.ReadyPollMax <= 0 {
		return ErrInvalidReadyPollMax
	}
	if c.Backoff.InitialDelay <= 0 {
		return ErrInvalidBackoff
	}
	return nil
}
