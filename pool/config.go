package pool

import (
	"time"

	"github.com/pkg/errors"
)

// Config configures a Pool. The zero value is invalid; use DefaultConfig as
// a starting point.
type Config struct {
	MinConn             int
	MaxConn             int
	AcquireTimeout      time.Duration
	IdleTimeout         time.Duration
	HealthCheckInterval time.Duration
	HealthChecksEnabled bool
	ConnectString       string
}

// DefaultConfig returns the pool configuration defaults per the external
// interface contract: min=2, max=20, acquire_timeout=5s, idle_timeout=30s,
// health_check_interval=60s, health checks enabled.
func DefaultConfig(connectString string) Config {
	return Config{
		MinConn:             2,
		MaxConn:             20,
		AcquireTimeout:      5 * time.Second,
		IdleTimeout:         30 * time.Second,
		HealthCheckInterval: 60 * time.Second,
		HealthChecksEnabled: true,
		ConnectString:       connectString,
	}
}

// Validate enforces 0 <= MinConn <= MaxConn and all timeouts > 0.
func (c Config) Validate() error {
	if c.MinConn < 0 {
		return errors.New("min_conn must be >= 0")
	}
	if c.MinConn > c.MaxConn {
		return errors.New("min_conn must be <= max_conn")
	}
	if c.AcquireTimeout <= 0 {
		return errors.New("acquire_timeout must be > 0")
	}
	if c.IdleTimeout <= 0 {
		return errors.New("idle_timeout must be > 0")
	}
	if c.HealthCheckInterval <= 0 {
		return errors.New("health_check_interval must be > 0")
	}

	return nil
}
