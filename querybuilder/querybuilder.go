// Package querybuilder provides a DatabaseKind-selecting facade over the
// three dialect-specific builders (relational, document, keyvalue). A
// facade instance is single-dialect once constructed: the dialect choice
// only happens at NewForKind, never mid-build.
package querybuilder

import (
	"github.com/pkg/errors"

	"github.com/kcenon/dbcore/driver"
	"github.com/kcenon/dbcore/querybuilder/document"
	"github.com/kcenon/dbcore/querybuilder/keyvalue"
	"github.com/kcenon/dbcore/querybuilder/relational"
)

// Facade wraps exactly one of the three dialect builders, selected once at
// construction by DatabaseKind.
type Facade struct {
	kind       driver.DatabaseKind
	relational *relational.Builder
	document   *document.Builder
	keyvalue   *keyvalue.Builder
}

// NewForKind returns a Facade for kind, or an error if kind isn't a
// supported query-builder dialect (Oracle has no dialect builder, per the
// relational subset explicitly named in the source material).
func NewForKind(kind driver.DatabaseKind) (*Facade, error) {
	f := &Facade{kind: kind}

	switch kind {
	case driver.Postgres, driver.MySQL, driver.SQLite:
		f.relational = relational.New()
	case driver.MongoDB:
		f.document = document.New()
	case driver.Redis:
		f.keyvalue = keyvalue.New()
	default:
		return nil, errors.Errorf("querybuilder: no dialect for %s", kind)
	}

	return f, nil
}

// Kind returns the DatabaseKind this facade was constructed for.
func (f *Facade) Kind() driver.DatabaseKind { return f.kind }

// Relational returns the underlying relational builder, or nil if this
// facade wasn't constructed for a relational kind.
func (f *Facade) Relational() *relational.Builder { return f.relational }

// Document returns the underlying document builder, or nil if this facade
// wasn't constructed for MongoDB.
func (f *Facade) Document() *document.Builder { return f.document }

// KeyValue returns the underlying key-value builder, or nil if this facade
// wasn't constructed for Redis.
func (f *Facade) KeyValue() *keyvalue.Builder { return f.keyvalue }

// dialectFor maps a relational DatabaseKind to its relational.Dialect.
func dialectFor(kind driver.DatabaseKind) relational.Dialect {
	switch kind {
	case driver.MySQL:
		return relational.MySQL
	case driver.SQLite:
		return relational.SQLite
	default:
		return relational.Postgres
	}
}

// Build renders whichever dialect builder this facade wraps, using the
// dialect implied by Kind() for the relational case.
func (f *Facade) Build() (string, error) {
	switch {
	case f.relational != nil:
		return f.relational.Build(dialectFor(f.kind))
	case f.document != nil:
		return f.document.Build()
	case f.keyvalue != nil:
		return f.keyvalue.Build()
	default:
		return "", errors.New("querybuilder: facade has no builder")
	}
}
