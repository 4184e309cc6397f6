package structify

import (
	"fmt"

	"github.com/kcenon/dbcore/driver"
)

// FromRow converts a driver.Row into the map[string]any shape MapStructifier
// expects: every non-null column is stringified (matching the raw-text
// values a real backend driver would hand back for untyped scanning); null
// columns are omitted entirely, so a destination field they'd populate is
// simply left at its zero value.
func FromRow(row *driver.Row) map[string]any {
	m := make(map[string]any, row.Len())

	for name, v := range row.All() {
		if v.IsNull() {
			continue
		}

		m[name] = fmt.Sprint(v.Interface())
	}

	return m
}

// DecodeRow applies a MapStructifier built for one struct type to a single
// row, a convenience wrapper around FromRow for query-result scanning.
func DecodeRow(row *driver.Row, structify MapStructifier) (any, error) {
	return structify(FromRow(row))
}
