// Package driver defines the backend-agnostic operation surface (C1) implemented
// by every concrete backend driver (C2, see the pgdriver/mysqldriver/sqlitedriver/
// mongodriver/rediskv subpackages) and the data types that flow across it.
package driver

import "github.com/pkg/errors"

// DatabaseKind identifies a concrete backend technology. Its numeric values are
// part of the wire contract (e.g. pool registry keys, monitor export labels) and
// must not be renumbered.
type DatabaseKind uint8

const (
	None DatabaseKind = iota
	Postgres
	MySQL
	SQLite
	Oracle
	MongoDB
	Redis
)

// String returns the lower-case name of the kind, e.g. "postgres".
func (k DatabaseKind) String() string {
	switch k {
	case None:
		return "none"
	case Postgres:
		return "postgres"
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite"
	case Oracle:
		return "oracle"
	case MongoDB:
		return "mongodb"
	case Redis:
		return "redis"
	default:
		return "unknown"
	}
}

// ParseKind parses the lower-case name String returns back into a
// DatabaseKind, for config files and CLI flags that name a backend by string.
func ParseKind(s string) (DatabaseKind, error) {
	switch s {
	case "postgres", "postgresql", "pgsql":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "oracle":
		return Oracle, nil
	case "mongodb", "mongo":
		return MongoDB, nil
	case "redis":
		return Redis, nil
	default:
		return None, errors.Errorf("driver: unknown database kind %q", s)
	}
}

// Relational reports whether k is served by a SQL dialect.
func (k DatabaseKind) Relational() bool {
	switch k {
	case Postgres, MySQL, SQLite, Oracle:
		return true
	default:
		return false
	}
}
