package structify

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kcenon/dbcore/driver"
)

type rowTarget struct {
	Name  string `column:"name"`
	Count int64  `column:"count"`
}

func TestDecodeRow_PopulatesFromNonNullColumns(t *testing.T) {
	row := driver.NewRow()
	require.NoError(t, row.Set("name", driver.StringValue("widgets")))
	require.NoError(t, row.Set("count", driver.Int64Value(7)))
	require.NoError(t, row.Set("ignored", driver.NullValue()))

	ms := MakeMapStructifier(reflect.TypeOf(rowTarget{}), "column", nil)

	decoded, err := DecodeRow(row, ms)
	require.NoError(t, err)
	require.Equal(t, &rowTarget{Name: "widgets", Count: 7}, decoded)
}

func TestFromRow_OmitsNullColumns(t *testing.T) {
	row := driver.NewRow()
	require.NoError(t, row.Set("a", driver.NullValue()))
	require.NoError(t, row.Set("b", driver.StringValue("x")))

	m := FromRow(row)
	_, hasA := m["a"]
	require.False(t, hasA)
	require.Equal(t, "x", m["b"])
}
