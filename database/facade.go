package database

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/kcenon/dbcore/driver"
	"github.com/kcenon/dbcore/driver/mongodriver"
	"github.com/kcenon/dbcore/driver/mysqldriver"
	"github.com/kcenon/dbcore/driver/pgdriver"
	"github.com/kcenon/dbcore/driver/rediskv"
	"github.com/kcenon/dbcore/driver/sqlitedriver"
	"github.com/kcenon/dbcore/logging"
	"github.com/kcenon/dbcore/monitor"
	"github.com/kcenon/dbcore/pool"
	"github.com/kcenon/dbcore/querybuilder"
)

// Factories is the DatabaseKind-keyed factory table Database selects from,
// generalizing db.go's NewDbFromConfig switch c.Type mysql/pgsql branch
// into a table spanning all five backends.
var Factories = map[driver.DatabaseKind]driver.Factory{
	driver.Postgres: pgdriver.New,
	driver.MySQL:    func(logger *logging.Logger) driver.Driver { return mysqldriver.New(logger, nil) },
	driver.SQLite:   sqlitedriver.New,
	driver.MongoDB:  mongodriver.New,
	driver.Redis:    rediskv.New,
}

// Database is the facade (C8): one active driver, selected by kind, plus a
// pool registry independent of that active driver. Unlike the teacher's
// DB/NewDbFromConfig (constructed once, fixed to one backend for its whole
// lifetime), Database supports switching its active driver at runtime via
// SetMode, as long as no connection is currently open.
type Database struct {
	logger *logging.Logger
	pools  *pool.Registry

	mu       sync.Mutex
	kind     driver.DatabaseKind
	active   driver.Driver
	connOpen bool
	builder  *querybuilder.Facade
	monitor  *monitor.Monitor
}

// New returns a Database with no active driver set. Every query method is
// safe to call before SetMode: it returns the safe-default zero value.
func New(logger *logging.Logger) *Database {
	return &Database{
		logger: logger,
		pools:  pool.NewRegistry(),
	}
}

// SetMonitor attaches mon so every subsequent driver call and pool
// acquisition/release reports to it (C7). Passing nil disables monitoring.
// Safe to call before or after SetMode/CreatePool.
func (d *Database) SetMonitor(mon *monitor.Monitor) {
	d.mu.Lock()
	d.monitor = mon
	pools := d.pools
	d.mu.Unlock()

	pools.SetMonitor(mon)
}

// Monitor returns the currently attached monitor, or nil if SetMonitor
// hasn't been called.
func (d *Database) Monitor() *monitor.Monitor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.monitor
}

// recordQuery reports one driver call to the attached monitor, if any.
// Success reflects the driver's own bool/safe-default convention: a query
// kind without a boolean success signal (insert/update/delete/select) is
// recorded as successful, since the driver interface has no way to
// distinguish "failed" from "legitimately affected/returned nothing."
func (d *Database) recordQuery(q string, start time.Time, success bool) {
	d.mu.Lock()
	mon := d.monitor
	d.mu.Unlock()

	if mon == nil {
		return
	}

	mon.RecordQuery(monitor.QueryMetric{
		Query:      q,
		DurationUs: time.Since(start).Microseconds(),
		Success:    success,
	})
}

// ErrConnectionOpen is returned by SetMode when a connection is already
// open on the current active driver.
var ErrConnectionOpen = errors.New("database: connection already open, disconnect before changing mode")

// SetMode swaps the active driver to one constructed from Factories[kind].
// It fails if a connection is currently open; disconnect first.
func (d *Database) SetMode(kind driver.DatabaseKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connOpen {
		return ErrConnectionOpen
	}

	factory, ok := Factories[kind]
	if !ok {
		return errors.Errorf("database: no driver factory registered for %s", kind)
	}

	builder, err := querybuilder.NewForKind(kind)
	if err != nil {
		return err
	}

	d.kind = kind
	d.active = factory(d.logger)
	d.builder = builder
	return nil
}

// Kind returns the currently active DatabaseKind, or driver.None if SetMode
// hasn't been called yet.
func (d *Database) Kind() driver.DatabaseKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.kind
}

// QueryBuilder returns the query-builder facade for the active kind, or
// nil if SetMode hasn't been called yet.
func (d *Database) QueryBuilder() *querybuilder.Facade {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.builder
}

// Connect opens the active driver's connection. Returns false with no
// active driver set.
func (d *Database) Connect(ctx context.Context, connString string) bool {
	d.mu.Lock()
	active := d.active
	d.mu.Unlock()

	if active == nil {
		d.logger.Error("database: connect called with no active driver set")
		return false
	}

	ok := active.Connect(ctx, connString)

	d.mu.Lock()
	d.connOpen = ok
	d.mu.Unlock()

	return ok
}

// Disconnect closes the active driver's connection, if any.
func (d *Database) Disconnect(ctx context.Context) bool {
	d.mu.Lock()
	active := d.active
	d.mu.Unlock()

	if active == nil {
		return false
	}

	ok := active.Disconnect(ctx)

	d.mu.Lock()
	d.connOpen = false
	d.mu.Unlock()

	return ok
}

func (d *Database) driverOrNil() driver.Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// CreateQuery delegates to the active driver, or returns false when no
// driver is set. The call is timed and its outcome reported to the
// attached monitor (C7).
func (d *Database) CreateQuery(ctx context.Context, q string) bool {
	active := d.driverOrNil()
	if active == nil {
		return false
	}

	start := time.Now()
	ok := active.CreateQuery(ctx, q)
	d.recordQuery(q, start, ok)
	return ok
}

// InsertQuery delegates to the active driver, or returns 0 when no driver
// is set. The call is timed and reported to the attached monitor (C7).
func (d *Database) InsertQuery(ctx context.Context, q string) uint32 {
	active := d.driverOrNil()
	if active == nil {
		return 0
	}

	start := time.Now()
	n := active.InsertQuery(ctx, q)
	d.recordQuery(q, start, true)
	return n
}

// UpdateQuery delegates to the active driver, or returns 0 when no driver
// is set. The call is timed and reported to the attached monitor (C7).
func (d *Database) UpdateQuery(ctx context.Context, q string) uint32 {
	active := d.driverOrNil()
	if active == nil {
		return 0
	}

	start := time.Now()
	n := active.UpdateQuery(ctx, q)
	d.recordQuery(q, start, true)
	return n
}

// DeleteQuery delegates to the active driver, or returns 0 when no driver
// is set. The call is timed and reported to the attached monitor (C7).
func (d *Database) DeleteQuery(ctx context.Context, q string) uint32 {
	active := d.driverOrNil()
	if active == nil {
		return 0
	}

	start := time.Now()
	n := active.DeleteQuery(ctx, q)
	d.recordQuery(q, start, true)
	return n
}

// SelectQuery delegates to the active driver, or returns an empty result
// when no driver is set. The call is timed and reported to the attached
// monitor (C7).
func (d *Database) SelectQuery(ctx context.Context, q string) driver.Result {
	active := d.driverOrNil()
	if active == nil {
		return driver.Result{}
	}

	start := time.Now()
	result := active.SelectQuery(ctx, q)
	d.recordQuery(q, start, true)
	return result
}

// ExecuteQuery delegates to the active driver, or returns false when no
// driver is set. The call is timed and its outcome reported to the
// attached monitor (C7).
func (d *Database) ExecuteQuery(ctx context.Context, q string) bool {
	active := d.driverOrNil()
	if active == nil {
		return false
	}

	start := time.Now()
	ok := active.ExecuteQuery(ctx, q)
	d.recordQuery(q, start, ok)
	return ok
}

// CreatePool registers (or replaces) a connection pool for kind,
// independent of whichever driver is currently active.
func (d *Database) CreatePool(ctx context.Context, kind driver.DatabaseKind, cfg pool.Config) (*pool.Pool, error) {
	factory, ok := Factories[kind]
	if !ok {
		return nil, errors.Errorf("database: no driver factory registered for %s", kind)
	}
	return d.pools.Create(ctx, kind, cfg, factory, d.logger)
}

// Pool returns the registered pool for kind, if any.
func (d *Database) Pool(kind driver.DatabaseKind) (*pool.Pool, bool) {
	return d.pools.Get(kind)
}

// ShutdownPools shuts down every registered pool and stops the attached
// monitor's retention sweeper, if any.
func (d *Database) ShutdownPools() {
	d.pools.ShutdownAll()

	if mon := d.Monitor(); mon != nil {
		mon.Stop()
	}
}
