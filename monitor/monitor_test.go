package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kcenon/dbcore/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	return logging.NewLogger(zaptest.NewLogger(t).Sugar(), time.Second)
}

func TestMonitor_AggregateComputesBasicStats(t *testing.T) {
	m := New(testLogger(t), time.Hour, DefaultThresholds())

	m.RecordQuery(QueryMetric{Query: "SELECT 1", DurationUs: 100, Success: true})
	m.RecordQuery(QueryMetric{Query: "SELECT 2", DurationUs: 300, Success: true})
	m.RecordQuery(QueryMetric{Query: "SELECT 3", DurationUs: 200, Success: false, ErrorMsg: "boom"})

	agg := m.Aggregate()
	require.Equal(t, uint64(3), agg.TotalQueries)
	require.Equal(t, uint64(2), agg.SuccessfulQueries)
	require.Equal(t, uint64(1), agg.FailedQueries)
	require.InDelta(t, 200, agg.AvgDurationUs, 0.01)
	require.InDelta(t, 1.0/3.0, agg.ErrorRate, 0.01)
}

func TestMonitor_SlowQueryAlertFires(t *testing.T) {
	m := New(testLogger(t), time.Hour, Thresholds{SlowQueryUs: 100, LatencyUs: 10_000_000, ErrorRateThreshold: 1, PoolUtilization: 1})

	var fired []Alert
	m.Subscribe(func(a Alert) { fired = append(fired, a) })

	m.RecordQuery(QueryMetric{Query: "SELECT slow", DurationUs: 500, Success: true})

	require.Len(t, fired, 1)
	require.Equal(t, SlowQuery, fired[0].Kind)
}

func TestMonitor_PoolExhaustionAlertFires(t *testing.T) {
	m := New(testLogger(t), time.Hour, DefaultThresholds())

	var fired []Alert
	m.Subscribe(func(a Alert) { fired = append(fired, a) })

	m.RecordConnection(ConnectionMetric{PoolName: "pg", Total: 10, Active: 10})

	require.Len(t, fired, 1)
	require.Equal(t, PoolExhaustion, fired[0].Kind)
}

func TestMonitor_AlertHandlerPanicIsolated(t *testing.T) {
	m := New(testLogger(t), time.Hour, Thresholds{SlowQueryUs: 1, LatencyUs: 10_000_000, ErrorRateThreshold: 1, PoolUtilization: 1})

	ran := false
	m.Subscribe(func(a Alert) { panic("boom") })
	m.Subscribe(func(a Alert) { ran = true })

	m.RecordQuery(QueryMetric{Query: "q", DurationUs: 50, Success: true})

	require.True(t, ran)
}

func TestMonitor_ExportJSONHasStandardKeys(t *testing.T) {
	m := New(testLogger(t), time.Hour, DefaultThresholds())
	m.RecordQuery(QueryMetric{Query: "q", DurationUs: 10, Success: true})
	m.RecordConnection(ConnectionMetric{PoolName: "pg", Total: 10, Active: 1})

	raw, err := m.ExportJSON()
	require.NoError(t, err)
	require.Contains(t, string(raw), `"total_queries"`)
	require.Contains(t, string(raw), `"connection_utilization"`)
}

func TestMonitor_ExportPrometheusIncludesHelpAndType(t *testing.T) {
	m := New(testLogger(t), time.Hour, DefaultThresholds())
	m.RecordQuery(QueryMetric{Query: "q", DurationUs: 10, Success: true})

	text, err := m.ExportPrometheus()
	require.NoError(t, err)
	require.Contains(t, text, "# HELP database_queries_total")
	require.Contains(t, text, "# TYPE database_queries_total counter")
}

func TestMonitor_SweepPurgesExpiredEntries(t *testing.T) {
	m := New(testLogger(t), 30*time.Millisecond, DefaultThresholds())
	m.RecordQuery(QueryMetric{Query: "old", DurationUs: 1, Success: true, Timestamp: time.Now().Add(-time.Hour)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx, 10*time.Millisecond)
	defer m.Stop()

	require.Eventually(t, func() bool {
		return m.Aggregate().TotalQueries == 0
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestMonitor_TopErrorsDeterministicOrder(t *testing.T) {
	m := New(testLogger(t), time.Hour, DefaultThresholds())
	m.RecordQuery(QueryMetric{Query: "q1", DurationUs: 1, Success: false, ErrorMsg: "zeta"})
	m.RecordQuery(QueryMetric{Query: "q2", DurationUs: 1, Success: false, ErrorMsg: "alpha"})

	top := m.TopErrors()
	require.Len(t, top, 2)
	require.Equal(t, "alpha", top[0].Message)
	require.Equal(t, "zeta", top[1].Message)
}
