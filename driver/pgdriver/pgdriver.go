// Package pgdriver implements the driver.Driver capability set for PostgreSQL,
// over database/sql, github.com/lib/pq and github.com/jmoiron/sqlx for row
// scanning, adapted from the teacher's NewDbFromConfig pgsql branch and its
// RetryConnector (database/db.go, database/driver.go).
package pgdriver

import (
	"context"
	"database/sql"
	stddriver "database/sql/driver"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/kcenon/dbcore/backoff"
	dbdriver "github.com/kcenon/dbcore/driver"
	"github.com/kcenon/dbcore/logging"
	"github.com/kcenon/dbcore/retry"
)

// Driver implements driver.Driver and driver.AddrProvider for PostgreSQL.
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

func (d *Driver) Kind() dbdriver.DatabaseKind { return dbdriver.Postgres }

// GetAddr implements driver.AddrProvider.
func (d *Driver) GetAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.addr
}

// Connect opens a PostgreSQL connection using the libpq key=value DSN described
// in spec §6 (e.g. "host=... port=... dbname=... user=... password=...").
func (d *Driver) Connect(ctx context.Context, connString string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConnectFailed, "connect", errors.New("already connected")))
		return false
	}

	connector, err := pq.NewConnector(connString)
	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConfigurationInvalid, "connect", err))
		return false
	}

	db := sqlx.NewDb(sql.OpenDB(retryConnector{Connector: connector, logger: d.logger}), "postgres")
	if err := db.PingContext(ctx); err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConnectFailed, "connect", err))
		_ = db.Close()
		return false
	}

	d.db = db
	d.addr = addrFromDSN(connString)

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

	var exists bool
	err := d.db.GetContext(ctx, &exists, `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables WHERE table_name = $1
	)`, name)

	return err == nil && exists
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

// addrFromDSN extracts "host:port" from a libpq key=value DSN for log context,
// mirroring the teacher's Client.GetAddr rendering for non-SQL drivers.
func addrFromDSN(dsn string) string {
	var host, port string

	for _, field := range strings.Fields(dsn) {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}

		switch k {
		case "host":
			host = v
		case "port":
			port = v
		}
	}

	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "5432"
	}

	return host + ":" + port
}

// retryConnector wraps a pq Connector with the teacher's retry.WithBackoff +
// backoff.NewExponentialWithJitter reconnect idiom (database/driver.go's RetryConnector).
type retryConnector struct {
	stddriver.Connector
	logger *logging.Logger
}

func (c retryConnector) Connect(ctx context.Context) (stddriver.Conn, error) {
	var conn stddriver.Conn

	err := retry.WithBackoff(
		ctx,
		func(ctx context.Context) (err error) {
			conn, err = c.Connector.Connect(ctx)
			return
		},
		func(err error) bool {
			return errors.Is(err, stddriver.ErrBadConn) || retry.Retryable(err)
		},
		backoff.NewExponentialWithJitter(time.Millisecond*128, time.Minute),
		retry.Settings{
			Timeout: time.Minute * 5,
			OnRetryableError: func(elapsed time.Duration, attempt uint64, err, lastErr error) {
				if lastErr == nil || err.Error() != lastErr.Error() {
					c.logger.Warnw("Can't connect to database. Retrying", "error", err)
				}
			},
			OnSuccess: func(elapsed time.Duration, attempt uint64, lastErr error) {
				if attempt > 0 {
					c.logger.Infow("Reconnected to database", "after", elapsed, "attempts", attempt+1)
				}
			},
		},
	)

	return conn, errors.Wrap(err, "can't connect to database")
}

func (c retryConnector) Driver() stddriver.Driver {
	return c.Connector.Driver()
}
