package config

import (
	"time"

	"github.com/creasty/defaults"
	"github.com/pkg/errors"

	"github.com/kcenon/dbcore/driver"
	"github.com/kcenon/dbcore/monitor"
	"github.com/kcenon/dbcore/pool"
)

// Database defines the engine's database client configuration: which
// backend to talk to, how to reach it, and how its connection pool and
// performance monitor are tuned. Adapted from the teacher's Database
// config struct (Host/Port/Database/User/Password/MaxConnections), whose
// Open method built a single fixed mysql *icingadb.DB; this one instead
// names any of the five backends via Kind, leaving composition of the
// facade itself to database.NewFromConfig so this package never has to
// import the database package back.
type Database struct {
	Kind           string        `yaml:"kind" default:"postgres"`
	ConnectString  string        `yaml:"connect_string"`
	MaxConnections int           `yaml:"max_connections" default:"16"`
	MinConnections int           `yaml:"min_connections" default:"2"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout" default:"5s"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" default:"30s"`
	HealthInterval time.Duration `yaml:"health_check_interval" default:"60s"`

	TransactionTimeout time.Duration `yaml:"transaction_timeout" default:"30s"`

	MonitorWindow      time.Duration `yaml:"monitor_window" default:"1h"`
	MonitorSweepPeriod time.Duration `yaml:"monitor_sweep_period" default:"5m"`
}

// Validate implements Validator.
func (d *Database) Validate() error {
	if d.ConnectString == "" {
		return errors.New("connect_string is required")
	}
	if _, err := driver.ParseKind(d.Kind); err != nil {
		return errors.WithStack(err)
	}

	pc := d.PoolConfig()
	if err := pc.Validate(); err != nil {
		return errors.Wrap(err, "invalid pool configuration")
	}

	return nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface, applying struct
// tag defaults before decoding (the same pattern the teacher's Database
// config used, generalized beyond the mysql-only case).
func (d *Database) UnmarshalYAML(unmarshal func(interface{}) error) error {
	if err := defaults.Set(d); err != nil {
		return err
	}
	type self Database
	return unmarshal((*self)(d))
}

// ParsedKind resolves Kind into a driver.DatabaseKind.
func (d *Database) ParsedKind() (driver.DatabaseKind, error) {
	return driver.ParseKind(d.Kind)
}

// PoolConfig translates this configuration's pool-related fields into a
// pool.Config ready for pool.New / Database.CreatePool.
func (d *Database) PoolConfig() pool.Config {
	return pool.Config{
		MinConn:             d.MinConnections,
		MaxConn:             d.MaxConnections,
		AcquireTimeout:      d.AcquireTimeout,
		IdleTimeout:         d.IdleTimeout,
		HealthCheckInterval: d.HealthInterval,
		HealthChecksEnabled: true,
		ConnectString:       d.ConnectString,
	}
}

// MonitorThresholds returns the alert thresholds a Monitor built for this
// config should use. Defaults match monitor.DefaultThresholds.
func (d *Database) MonitorThresholds() monitor.Thresholds {
	return monitor.DefaultThresholds()
}
