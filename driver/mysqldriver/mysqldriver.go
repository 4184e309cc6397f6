// Package mysqldriver implements the driver.Driver capability set for MySQL
// and MySQL-compatible servers (MariaDB, Galera), over database/sql,
// github.com/go-sql-driver/mysql and github.com/jmoiron/sqlx, adapted from the
// teacher's NewDbFromConfig mysql branch and its RetryConnector
// (database/db.go, database/driver.go) plus database/mysql_split.go for
// DELIMITER-aware multi-statement admin scripts.
package mysqldriver

import (
	"context"
	"database/sql"
	stddriver "database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/kcenon/dbcore/backoff"
	dbdriver "github.com/kcenon/dbcore/driver"
	"github.com/kcenon/dbcore/logging"
	"github.com/kcenon/dbcore/retry"
	"github.com/kcenon/dbcore/utils"
)

// OnInitConn is called once per new connection, before it is returned to the
// pool, generalizing the teacher's wsrep_sync_wait session-variable hook: any
// caller-supplied session setup (Galera causality waits, isolation level,
// time zone, ...) can be plugged in without this package knowing about it.
type OnInitConn func(ctx context.Context, conn stddriver.Conn) error

// Driver implements driver.Driver and driver.AddrProvider for MySQL.
type Driver struct {
	logger     *logging.Logger
	onInitConn OnInitConn

	mu   sync.Mutex
	db   *sqlx.DB
	addr string
}

// New returns a Driver satisfying driver.Factory, not yet connected. onInitConn
// may be nil, in which case no per-connection setup is performed.
func New(logger *logging.Logger, onInitConn OnInitConn) dbdriver.Driver {
	return &Driver{logger: logger, onInitConn: onInitConn}
}

func (d *Driver) Kind() dbdriver.DatabaseKind { return dbdriver.MySQL }

// GetAddr implements driver.AddrProvider.
func (d *Driver) GetAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.addr
}

// Connect opens a MySQL connection using the semicolon-delimited key=value
// connection string described in spec §6: "host (default localhost); port
// (default 3306); database; user; password". database and user are required.
func (d *Driver) Connect(ctx context.Context, connString string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConnectFailed, "connect", errors.New("already connected")))
		return false
	}

	params, err := parseConnString(connString)
	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConfigurationInvalid, "connect", err))
		return false
	}

	config := mysql.NewConfig()
	config.User = params.user
	config.Passwd = params.password
	config.DBName = params.database
	config.Logger = mysqlLogger(func(v ...interface{}) { d.logger.Debug(v...) })
	config.Params = map[string]string{"sql_mode": "'ANSI_QUOTES'"}
	config.ParseTime = true

	if utils.IsUnixAddr(params.host) {
		config.Net = "unix"
		config.Addr = params.host
	} else {
		config.Net = "tcp"
		config.Addr = utils.JoinHostPort(params.host, params.port)
	}

	connector, err := mysql.NewConnector(config)
	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConfigurationInvalid, "connect", err))
		return false
	}

	db := sqlx.NewDb(sql.OpenDB(retryConnector{
		Connector:  connector,
		logger:     d.logger,
		onInitConn: d.onInitConn,
	}), "mysql")

	if err := db.PingContext(ctx); err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConnectFailed, "connect", err))
		_ = db.Close()
		return false
	}

	d.db = db
	d.addr = config.Addr

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

// CreateQuery runs q as an admin/DDL script. q may contain multiple statements
// and a DELIMITER directive (see splitStatements), unlike the other backends'
// single-statement CreateQuery.
func (d *Driver) CreateQuery(ctx context.Context, q string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		d.logger.Error(dbdriver.ErrNotConnected)
		return false
	}

	for _, stmt := range splitStatements(q) {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			d.logger.Error(dbdriver.NewError(dbdriver.QueryRejected, "create_query", err))
			return false
		}
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
	err := d.db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = ?`, name)

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

type connParams struct {
	host     string
	port     int
	database string
	user     string
	password string
}

// parseConnString parses the semicolon-delimited key=value connection string
// format this driver accepts (the PostgreSQL and SQLite drivers take their
// own formats).
func parseConnString(s string) (connParams, error) {
	p := connParams{host: "localhost", port: 3306}

	for _, field := range strings.Split(s, ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		k, v, ok := strings.Cut(field, "=")
		if !ok {
			return connParams{}, errors.Errorf("invalid connection string field %q", field)
		}

		switch strings.TrimSpace(k) {
		case "host":
			p.host = strings.TrimSpace(v)
		case "port":
			port, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return connParams{}, errors.Wrap(err, "invalid port")
			}
			p.port = port
		case "database":
			p.database = strings.TrimSpace(v)
		case "user":
			p.user = strings.TrimSpace(v)
		case "password":
			p.password = strings.TrimSpace(v)
		}
	}

	if p.database == "" {
		return connParams{}, errors.New("connection string missing required key \"database\"")
	}
	if p.user == "" {
		return connParams{}, errors.New("connection string missing required key \"user\"")
	}

	return p, nil
}

// mysqlLogger adapts an ordinary function to the go-sql-driver/mysql.Logger
// interface, matching the teacher's database/driver.go adapter of the same name.
type mysqlLogger func(v ...interface{})

func (log mysqlLogger) Print(v ...interface{}) {
	log(v)
}

// retryConnector wraps a mysql Connector with the teacher's retry.WithBackoff +
// backoff.NewExponentialWithJitter reconnect idiom (database/driver.go's
// RetryConnector), and runs onInitConn once per newly established connection.
type retryConnector struct {
	stddriver.Connector
	logger     *logging.Logger
	onInitConn OnInitConn
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
	if err != nil {
		return nil, errors.Wrap(err, "can't connect to database")
	}

	if c.onInitConn != nil {
		if err := c.onInitConn(ctx, conn); err != nil {
			c.logger.Warnw("Connection init hook failed", "error", err)
		}
	}

	return conn, nil
}

func (c retryConnector) Driver() stddriver.Driver {
	return c.Connector.Driver()
}
