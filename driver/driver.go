package driver

import (
	"context"

	"github.com/kcenon/dbcore/logging"
)

// Driver is the capability set every backend (C2) satisfies: a uniform operation
// surface over Postgres, MySQL, SQLite, MongoDB and Redis alike. Per the package's
// propagation policy, operations never return a Go error: a backend failure is
// reported as a safe default (false / 0 / empty Result) and the diagnostic is sent
// to the driver's logger. Every mutating method is safe to call from multiple
// goroutines sharing the same Driver value; calls are serialized internally.
type Driver interface {
	// Kind returns the backend this Driver talks to. Pure; always succeeds.
	Kind() DatabaseKind

	// Connect opens the backend connection described by connString. It is
	// idempotent on success: connecting twice without an intervening Disconnect
	// reports failure rather than silently replacing the live handle.
	Connect(ctx context.Context, connString string) bool

	// Disconnect closes the live connection, if any.
	Disconnect(ctx context.Context) bool

	// CreateQuery executes a DDL-like statement with no row result.
	CreateQuery(ctx context.Context, q string) bool

	// InsertQuery executes an insert and returns the number of rows/documents affected.
	InsertQuery(ctx context.Context, q string) uint32

	// UpdateQuery executes an update and returns the number of rows/documents affected.
	UpdateQuery(ctx context.Context, q string) uint32

	// DeleteQuery executes a delete and returns the number of rows/documents affected.
	DeleteQuery(ctx context.Context, q string) uint32

	// SelectQuery executes a read and returns the decoded result set.
	SelectQuery(ctx context.Context, q string) Result

	// ExecuteQuery is a generic sink for admin/command strings that don't fit the
	// insert/update/delete/select shapes (e.g. a Mongo run_command document).
	ExecuteQuery(ctx context.Context, q string) bool
}

// AddrProvider is an optional capability exposed by drivers that can render
// their configured endpoint as a connection-string-like address, primarily
// for inclusion in structured log context.
type AddrProvider interface {
	GetAddr() string
}

// TableChecker is an optional capability exposed by relational drivers that can
// probe whether a given table exists without running a full query.
type TableChecker interface {
	HasTable(ctx context.Context, name string) bool
}

// Factory constructs a new, not-yet-connected Driver instance logging through logger.
// The database facade (C8) and the connection pool (C3) both select a Factory from
// a table keyed by DatabaseKind.
type Factory func(logger *logging.Logger) Driver
