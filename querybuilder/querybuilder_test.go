package querybuilder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kcenon/dbcore/driver"
)

func TestFacade_SelectsDialectByKind(t *testing.T) {
	f, err := NewForKind(driver.MySQL)
	require.NoError(t, err)
	require.NotNil(t, f.Relational())

	f.Relational().Select("id").From("users")

	got, err := f.Build()
	require.NoError(t, err)
	require.Equal(t, "SELECT `id` FROM `users`", got)
}

func TestFacade_UnsupportedKind(t *testing.T) {
	_, err := NewForKind(driver.Oracle)
	require.Error(t, err)
}

func TestFacade_Document(t *testing.T) {
	f, err := NewForKind(driver.MongoDB)
	require.NoError(t, err)
	require.NotNil(t, f.Document())

	f.Document().Collection("users").Find(map[string]interface{}{"active": true})

	got, err := f.Build()
	require.NoError(t, err)
	require.Equal(t, `db.users.find({"active":true})`, got)
}

func TestFacade_KeyValue(t *testing.T) {
	f, err := NewForKind(driver.Redis)
	require.NoError(t, err)
	require.NotNil(t, f.KeyValue())

	f.KeyValue().Command("SET").Args("foo", "bar")

	got, err := f.Build()
	require.NoError(t, err)
	require.Equal(t, "SET foo bar", got)
}
