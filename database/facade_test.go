package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kcenon/dbcore/driver"
	"github.com/kcenon/dbcore/logging"
	"github.com/kcenon/dbcore/monitor"
	"github.com/kcenon/dbcore/pool"
)

func testFacadeLogger(t *testing.T) *logging.Logger {
	return logging.NewLogger(zaptest.NewLogger(t).Sugar(), time.Second)
}

func TestDatabase_SafeDefaultsBeforeSetMode(t *testing.T) {
	db := New(testFacadeLogger(t))

	require.Equal(t, driver.None, db.Kind())
	require.False(t, db.Connect(context.Background(), "anything"))
	require.Equal(t, uint32(0), db.InsertQuery(context.Background(), "q"))
	require.Empty(t, db.SelectQuery(context.Background(), "q"))
	require.False(t, db.ExecuteQuery(context.Background(), "q"))
}

func TestDatabase_SetModeSelectsDriverAndBuilder(t *testing.T) {
	db := New(testFacadeLogger(t))

	require.NoError(t, db.SetMode(driver.SQLite))
	require.Equal(t, driver.SQLite, db.Kind())
	require.NotNil(t, db.QueryBuilder())
	require.NotNil(t, db.QueryBuilder().Relational())
}

func TestDatabase_SetModeRejectsUnknownKind(t *testing.T) {
	db := New(testFacadeLogger(t))
	err := db.SetMode(driver.Oracle)
	require.Error(t, err)
}

func TestDatabase_SetModeFailsWhileConnected(t *testing.T) {
	db := New(testFacadeLogger(t))
	require.NoError(t, db.SetMode(driver.SQLite))
	require.True(t, db.Connect(context.Background(), ":memory:"))

	err := db.SetMode(driver.SQLite)
	require.ErrorIs(t, err, ErrConnectionOpen)

	require.True(t, db.Disconnect(context.Background()))
	require.NoError(t, db.SetMode(driver.SQLite))
}

func TestDatabase_CreatePoolIndependentOfActiveDriver(t *testing.T) {
	db := New(testFacadeLogger(t))
	require.NoError(t, db.SetMode(driver.SQLite))

	cfg := pool.DefaultConfig(":memory:")
	cfg.MinConn = 0

	_, err := db.CreatePool(context.Background(), driver.Postgres, cfg)
	require.NoError(t, err)

	_, ok := db.Pool(driver.Postgres)
	require.True(t, ok)

	// Active driver is unaffected by a pool registration for a different kind.
	require.Equal(t, driver.SQLite, db.Kind())

	db.ShutdownPools()
}

func TestDatabase_MonitorRecordsEveryDriverCallAndPoolEvent(t *testing.T) {
	db := New(testFacadeLogger(t))
	require.NoError(t, db.SetMode(driver.SQLite))
	require.True(t, db.Connect(context.Background(), ":memory:"))

	mon := monitor.New(testFacadeLogger(t), time.Hour, monitor.DefaultThresholds())
	db.SetMonitor(mon)
	require.Same(t, mon, db.Monitor())

	require.True(t, db.CreateQuery(context.Background(), "CREATE TABLE t (id INTEGER)"))
	db.InsertQuery(context.Background(), "INSERT INTO t (id) VALUES (1)")
	db.SelectQuery(context.Background(), "SELECT id FROM t")

	agg := mon.Aggregate()
	require.Equal(t, uint64(3), agg.TotalQueries)
	require.Equal(t, uint64(3), agg.SuccessfulQueries)

	cfg := pool.DefaultConfig(":memory:")
	cfg.MinConn = 0
	_, err := db.CreatePool(context.Background(), driver.SQLite, cfg)
	require.NoError(t, err)

	p, ok := db.Pool(driver.SQLite)
	require.True(t, ok)

	w, acquired := p.Acquire(context.Background())
	require.True(t, acquired)
	p.Release(w)

	agg = mon.Aggregate()
	require.Equal(t, cfg.MaxConn, agg.TotalConnections)
	require.Equal(t, 0, agg.ActiveConnections)

	db.ShutdownPools()
}
