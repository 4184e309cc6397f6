// Package rediskv implements the driver.Driver capability set for Redis,
// over github.com/redis/go-redis/v9, adapted from the teacher's
// NewClientFromConfig dialer/retry wiring (redis/client.go) but reduced to
// the uniform Driver surface: a single key's value is the whole "row".
package rediskv

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	dbdriver "github.com/kcenon/dbcore/driver"
	"github.com/kcenon/dbcore/logging"
	"github.com/kcenon/dbcore/utils"
)

// Driver implements driver.Driver and driver.AddrProvider for Redis.
type Driver struct {
	logger *logging.Logger

	mu     sync.Mutex
	client *redis.Client
	addr   string
}

// New returns a Driver satisfying driver.Factory, not yet connected.
func New(logger *logging.Logger) dbdriver.Driver {
	return &Driver{logger: logger}
}

func (d *Driver) Kind() dbdriver.DatabaseKind { return dbdriver.Redis }

// GetAddr implements driver.AddrProvider.
func (d *Driver) GetAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.addr
}

// Connect opens a Redis connection from a "redis://[pw@]host[:port]/db" URI
// or a bare "host[:port]" per spec §6 (default port 6379, database 0).
func (d *Driver) Connect(ctx context.Context, connString string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConnectFailed, "connect", errors.New("already connected")))
		return false
	}

	options, err := parseConnString(connString)
	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConfigurationInvalid, "connect", err))
		return false
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConnectFailed, "connect", err))
		_ = client.Close()
		return false
	}

	d.client = client
	d.addr = options.Addr

	return true
}

func (d *Driver) Disconnect(context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return false
	}

	err := d.client.Close()
	d.client = nil

	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConnectFailed, "disconnect", err))
		return false
	}

	return true
}

// CreateQuery runs q as a generic command (e.g. "CONFIG SET maxmemory 0"),
// split on whitespace, for administrative operations that don't fit the
// key:value mutation shape.
func (d *Driver) CreateQuery(ctx context.Context, q string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		d.logger.Error(dbdriver.ErrNotConnected)
		return false
	}

	args := toArgs(strings.Fields(q))
	if len(args) == 0 {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryShapeInvalid, "create_query", errors.New("empty command")))
		return false
	}

	if err := d.client.Do(ctx, args...).Err(); err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryRejected, "create_query", err))
		return false
	}

	return true
}

// InsertQuery accepts "<key>:<value>" and performs SET, reporting 1 on success.
func (d *Driver) InsertQuery(ctx context.Context, q string) uint32 {
	return d.set(ctx, "insert_query", q)
}

// UpdateQuery accepts "<key>:<value>" and performs SET, same as InsertQuery:
// Redis SET has upsert semantics, so there is no separate update path.
func (d *Driver) UpdateQuery(ctx context.Context, q string) uint32 {
	return d.set(ctx, "update_query", q)
}

func (d *Driver) set(ctx context.Context, op, q string) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		d.logger.Error(dbdriver.ErrNotConnected)
		return 0
	}

	key, value, ok := strings.Cut(q, ":")
	if !ok {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryShapeInvalid, op, errors.New("expected key:value")))
		return 0
	}

	if err := d.client.Set(ctx, key, value, 0).Err(); err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryRejected, op, err))
		return 0
	}

	return 1
}

// DeleteQuery takes the bare key to remove and returns the number of keys deleted.
func (d *Driver) DeleteQuery(ctx context.Context, q string) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		d.logger.Error(dbdriver.ErrNotConnected)
		return 0
	}

	n, err := d.client.Del(ctx, strings.TrimSpace(q)).Result()
	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryRejected, "delete_query", err))
		return 0
	}

	return uint32(n)
}

// SelectQuery takes the bare key to read and returns a single-row result
// {key, value}, or an empty Result if the key doesn't exist.
func (d *Driver) SelectQuery(ctx context.Context, q string) dbdriver.Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		d.logger.Error(dbdriver.ErrNotConnected)
		return nil
	}

	key := strings.TrimSpace(q)

	value, err := d.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return dbdriver.Result{}
	}
	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryRejected, "select_query", err))
		return nil
	}

	row := dbdriver.NewRow()
	_ = row.Set("key", dbdriver.StringValue(key))
	_ = row.Set("value", dbdriver.StringValue(value))

	return dbdriver.Result{row}
}

func (d *Driver) ExecuteQuery(ctx context.Context, q string) bool {
	return d.CreateQuery(ctx, q)
}

// HasTable implements driver.TableChecker by treating name as a key and
// reporting whether it exists, the closest Redis analog to "table presence".
func (d *Driver) HasTable(ctx context.Context, name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return false
	}

	n, err := d.client.Exists(ctx, name).Result()

	return err == nil && n > 0
}

func toArgs(fields []string) []interface{} {
	args := make([]interface{}, len(fields))
	for i, f := range fields {
		args[i] = f
	}

	return args
}

// parseConnString accepts a "redis://[pw@]host[:port]/db" URI or a bare
// "host[:port]" and produces redis.Options, defaulting port to 6379 and
// database to 0.
func parseConnString(s string) (*redis.Options, error) {
	if strings.HasPrefix(s, "redis://") {
		return redis.ParseURL(s)
	}

	host, port := s, "6379"
	if h, p, err := net.SplitHostPort(s); err == nil {
		host, port = h, p
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, errors.Wrap(err, "invalid port")
	}

	return &redis.Options{
		Network: "tcp",
		Addr:    utils.JoinHostPort(host, portNum),
		DB:      0,
	}, nil
}
