// Package sqlitedriver implements the driver.Driver capability set for
// SQLite, over database/sql, the pure-Go modernc.org/sqlite driver and
// github.com/jmoiron/sqlx for row scanning, adapted in the same shape as
// the other relational drivers (pgdriver, mysqldriver) but without a retry
// connector: SQLite is a local file, not a networked service, so transient
// connect failures aren't a concern the way they are for Postgres/MySQL.
package sqlitedriver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	dbdriver "github.com/kcenon/dbcore/driver"
	"github.com/kcenon/dbcore/logging"
)

// Driver implements driver.Driver and driver.AddrProvider for SQLite.
type Driver struct {
	logger *logging.Logger

	mu   sync.Mutex
	db   *sqlx.DB
	addr string
}

// New returns a Driver satisfying driver.Factory, not yet connected.
func New(logger *logging.Logger) dbdriver.Driver {
	return &Driver{logger: logger}
}

func (d *Driver) Kind() dbdriver.DatabaseKind { return dbdriver.SQLite }

// GetAddr implements driver.AddrProvider, returning the database file path.
func (d *Driver) GetAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.addr
}

// Connect opens a SQLite database at the file path given by connString (a
// bare path, or ":memory:" for an in-process database, per spec §6). Foreign
// key enforcement is turned on once, at Connect, on the single connection
// the driver keeps open (SQLite's PRAGMA applies per connection, not per
// database).
func (d *Driver) Connect(ctx context.Context, connString string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConnectFailed, "connect", errors.New("already connected")))
		return false
	}

	path := strings.TrimSpace(connString)
	if path == "" {
		d.logger.Error(dbdriver.NewError(dbdriver.ConfigurationInvalid, "connect", errors.New("empty connection string")))
		return false
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConfigurationInvalid, "connect", err))
		return false
	}

	// SQLite allows only one writer at a time; a single shared connection
	// avoids SQLITE_BUSY errors under concurrent use from this process.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConnectFailed, "connect", err))
		_ = db.Close()
		return false
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConnectFailed, "connect", err))
		_ = db.Close()
		return false
	}

	d.db = db
	d.addr = path

	return true
}

func (d *Driver) Disconnect(context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return false
	}

	err := d.db.Close()
	d.db = nil

	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConnectFailed, "disconnect", err))
		return false
	}

	return true
}

func (d *Driver) CreateQuery(ctx context.Context, q string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		d.logger.Error(dbdriver.ErrNotConnected)
		return false
	}

	if _, err := d.db.ExecContext(ctx, q); err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryRejected, "create_query", err))
		return false
	}

	return true
}

func (d *Driver) InsertQuery(ctx context.Context, q string) uint32 { return d.exec(ctx, "insert_query", q) }
func (d *Driver) UpdateQuery(ctx context.Context, q string) uint32 { return d.exec(ctx, "update_query", q) }
func (d *Driver) DeleteQuery(ctx context.Context, q string) uint32 { return d.exec(ctx, "delete_query", q) }

func (d *Driver) exec(ctx context.Context, op, q string) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		d.logger.Error(dbdriver.ErrNotConnected)
		return 0
	}

	res, err := d.db.ExecContext(ctx, q)
	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryRejected, op, err))
		return 0
	}

	n, err := res.RowsAffected()
	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryRejected, op, err))
		return 0
	}

	return uint32(n)
}

func (d *Driver) SelectQuery(ctx context.Context, q string) dbdriver.Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		d.logger.Error(dbdriver.ErrNotConnected)
		return nil
	}

	rows, err := d.db.QueryxContext(ctx, q)
	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryRejected, "select_query", err))
		return nil
	}
	defer rows.Close()

	result, err := decodeRows(rows)
	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryRejected, "select_query", err))
		return nil
	}

	return result
}

func (d *Driver) ExecuteQuery(ctx context.Context, q string) bool {
	return d.CreateQuery(ctx, q)
}

// HasTable implements driver.TableChecker.
func (d *Driver) HasTable(ctx context.Context, name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return false
	}

	var exists int
	err := d.db.GetContext(ctx, &exists,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name)

	return err == nil && exists > 0
}

func decodeRows(rows *sqlx.Rows) (dbdriver.Result, error) {
	var result dbdriver.Result

	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}

		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := dbdriver.NewRow()
		for i, col := range cols {
			_ = row.Set(col, toValue(vals[i]))
		}

		result = append(result, row)
	}

	return result, rows.Err()
}

func toValue(v interface{}) dbdriver.Value {
	switch t := v.(type) {
	case nil:
		return dbdriver.NullValue()
	case bool:
		return dbdriver.BoolValue(t)
	case int64:
		return dbdriver.Int64Value(t)
	case float64:
		return dbdriver.Float64Value(t)
	case []byte:
		return dbdriver.BytesValue(t)
	case string:
		return dbdriver.StringValue(t)
	case time.Time:
		return dbdriver.StringValue(t.Format(time.RFC3339Nano))
	default:
		return dbdriver.StringValue(fmt.Sprint(t))
	}
}
