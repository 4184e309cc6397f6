package driver

import (
	"iter"

	"github.com/pkg/errors"
)

// Row is an insertion-ordered, case-preserved mapping from column/field name to Value.
// Duplicate keys are disallowed: Set returns an error for a name already present.
type Row struct {
	index map[string]int
	names []string
	vals  []Value
}

// NewRow returns an empty Row.
func NewRow() *Row {
	return &Row{index: make(map[string]int)}
}

// Set appends (name, v) to the row. It returns an error if name is already present.
func (r *Row) Set(name string, v Value) error {
	if r.index == nil {
		r.index = make(map[string]int)
	}

	if _, ok := r.index[name]; ok {
		return errors.Errorf("duplicate column %q", name)
	}

	r.index[name] = len(r.names)
	r.names = append(r.names, name)
	r.vals = append(r.vals, v)

	return nil
}

// Get returns the Value stored under name and whether it was present.
func (r *Row) Get(name string) (Value, bool) {
	i, ok := r.index[name]
	if !ok {
		return Value{}, false
	}

	return r.vals[i], true
}

// Columns returns the row's column names in insertion order.
func (r *Row) Columns() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of columns in the row.
func (r *Row) Len() int {
	return len(r.names)
}

// All iterates the row's (name, Value) pairs in insertion order.
func (r *Row) All() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		for i, name := range r.names {
			if !yield(name, r.vals[i]) {
				return
			}
		}
	}
}

// Result is a finite, ordered sequence of rows. No error is returned alongside
// it: a failed query yields a nil Result and its diagnostic goes to the logger,
// and the relational and document drivers also return a nil Result for a query
// that matches no rows.
type Result []*Row
