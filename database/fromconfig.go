package database

import (
	"context"

	"github.com/pkg/errors"

	"github.com/kcenon/dbcore/config"
	"github.com/kcenon/dbcore/logging"
	"github.com/kcenon/dbcore/monitor"
)

// NewFromConfig builds a Database from a parsed configuration section:
// it resolves cfg.Kind, selects the matching driver via SetMode, connects
// using cfg.ConnectString, registers a pool of the same kind tuned from
// cfg's pool settings, and attaches a running performance monitor (C7)
// tuned from cfg's monitor settings so every driver call and pool
// acquisition/release is instrumented from the moment the Database is
// usable. Kept on this side of the config/database boundary (this file is
// the only place database imports config) so that config itself never
// needs to import the facade it describes.
func NewFromConfig(ctx context.Context, cfg *config.Database, logger *logging.Logger) (*Database, error) {
	kind, err := cfg.ParsedKind()
	if err != nil {
		return nil, err
	}

	db := New(logger)
	if err := db.SetMode(kind); err != nil {
		return nil, errors.Wrap(err, "setting active driver")
	}
	if !db.Connect(ctx, cfg.ConnectString) {
		return nil, errors.Errorf("failed to connect to %s", kind)
	}

	window := cfg.MonitorWindow
	if window <= 0 {
		window = monitor.DefaultWindow
	}
	sweepPeriod := cfg.MonitorSweepPeriod
	if sweepPeriod <= 0 {
		sweepPeriod = monitor.DefaultSweepInterval
	}

	mon := monitor.New(logger, window, cfg.MonitorThresholds())
	mon.Start(ctx, sweepPeriod)
	db.SetMonitor(mon)

	if _, err := db.CreatePool(ctx, kind, cfg.PoolConfig()); err != nil {
		return nil, errors.Wrap(err, "creating connection pool")
	}

	return db, nil
}
