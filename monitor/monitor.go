// Package monitor implements the performance monitor: a sliding-window
// ingest of per-query and per-pool metrics, on-demand aggregation, alert
// rules fanned out to registered handlers, and dual JSON/Prometheus export.
// Grounded on the teacher's periodic.Start idiom for the retention sweeper
// and on com.Counter's reset-while-tracking-total shape for windowed
// aggregates, and on prometheus-mysqld_exporter's prometheus.Desc/Collector
// pattern for the Prometheus export surface.
package monitor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kcenon/dbcore/com"
	"github.com/kcenon/dbcore/logging"
)

// QueryMetric is one ingested query observation.
type QueryMetric struct {
	Query      string
	DurationUs int64
	Success    bool
	ErrorMsg   string
	Timestamp  time.Time
}

// ConnectionMetric is one ingested pool snapshot.
type ConnectionMetric struct {
	PoolName  string
	Total     int
	Active    int
	Timestamp time.Time
}

// AlertKind names one of the monitor's alert rules.
type AlertKind string

const (
	SlowQuery      AlertKind = "slow_query"
	HighErrorRate  AlertKind = "high_error_rate"
	HighLatency    AlertKind = "high_latency"
	PoolExhaustion AlertKind = "pool_exhaustion"
)

// Alert is one fired alert event.
type Alert struct {
	Kind      AlertKind
	Message   string
	Timestamp time.Time
}

// AlertHandler receives fired alerts. A handler's panic or error is
// isolated — it never suppresses delivery to other handlers.
type AlertHandler func(Alert)

// Thresholds configures the monitor's alert rules.
type Thresholds struct {
	SlowQueryUs        int64
	ErrorRateThreshold float64
	LatencyUs          int64
	PoolUtilization    float64
}

// DefaultWindow is the monitor's default retention window, used by callers
// that build a Monitor from an unset/zero-value window.
const DefaultWindow = time.Hour

// DefaultThresholds returns the monitor's default alert thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SlowQueryUs:        500_000,
		ErrorRateThreshold: 0.1,
		LatencyUs:          1_000_000,
		PoolUtilization:    0.9,
	}
}

// Monitor is the process-wide performance monitor singleton surface (callers
// typically hold exactly one, but nothing here enforces singleton-ness —
// that's the facade's (C8) job, same division of responsibility as the
// pool registry).
type Monitor struct {
	logger     *logging.Logger
	window     time.Duration
	thresholds Thresholds

	mu      sync.Mutex
	queries []QueryMetric
	conns   map[string]ConnectionMetric

	handlersMu sync.Mutex
	handlers   []AlertHandler

	queryTotal      com.Counter
	querySuccess    com.Counter
	queryFailed     com.Counter
	errorHistogram  map[string]uint64
	errorHistogramMu sync.Mutex

	sweeper Stopper
	cancel  func()
}

// Stopper mirrors periodic.Stopper, kept local so monitor doesn't force
// callers to import periodic directly.
type Stopper interface {
	Stop()
}

// New returns a Monitor with the given retention window and alert
// thresholds. Start must be called to begin the retention sweep.
func New(logger *logging.Logger, window time.Duration, thresholds Thresholds) *Monitor {
	return &Monitor{
		logger:         logger,
		window:         window,
		thresholds:     thresholds,
		conns:          make(map[string]ConnectionMetric),
		errorHistogram: make(map[string]uint64),
	}
}

// Subscribe registers an alert handler.
func (m *Monitor) Subscribe(handler AlertHandler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// RecordQuery ingests one query observation, running the slow_query/
// high_error_rate/high_latency alert checks against it.
func (m *Monitor) RecordQuery(metric QueryMetric) {
	if metric.Timestamp.IsZero() {
		metric.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.queries = append(m.queries, metric)
	m.mu.Unlock()

	m.queryTotal.Inc()
	if metric.Success {
		m.querySuccess.Inc()
	} else {
		m.queryFailed.Inc()
		m.errorHistogramMu.Lock()
		m.errorHistogram[metric.ErrorMsg]++
		m.errorHistogramMu.Unlock()
	}

	if metric.DurationUs >= m.thresholds.SlowQueryUs {
		m.fire(Alert{Kind: SlowQuery, Message: fmt.Sprintf("query exceeded %dus: %s", m.thresholds.SlowQueryUs, metric.Query), Timestamp: metric.Timestamp})
	}
	if metric.DurationUs >= m.thresholds.LatencyUs {
		m.fire(Alert{Kind: HighLatency, Message: fmt.Sprintf("query latency %dus exceeded threshold", metric.DurationUs), Timestamp: metric.Timestamp})
	}

	agg := m.Aggregate()
	if agg.TotalQueries > 0 && agg.ErrorRate >= m.thresholds.ErrorRateThreshold {
		m.fire(Alert{Kind: HighErrorRate, Message: fmt.Sprintf("error rate %.2f exceeded threshold", agg.ErrorRate), Timestamp: metric.Timestamp})
	}
}

// RecordConnection ingests one pool snapshot, running the pool_exhaustion
// alert check against it.
func (m *Monitor) RecordConnection(metric ConnectionMetric) {
	if metric.Timestamp.IsZero() {
		metric.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.conns[metric.PoolName] = metric
	m.mu.Unlock()

	if metric.Total > 0 && float64(metric.Active)/float64(metric.Total) > m.thresholds.PoolUtilization {
		m.fire(Alert{Kind: PoolExhaustion, Message: fmt.Sprintf("pool %q utilization exceeded threshold", metric.PoolName), Timestamp: metric.Timestamp})
	}
}

// fire dispatches an alert to every registered handler, isolating each
// handler's panic from the others and from the caller.
func (m *Monitor) fire(alert Alert) {
	m.handlersMu.Lock()
	handlers := append([]AlertHandler(nil), m.handlers...)
	m.handlersMu.Unlock()

	for _, handler := range handlers {
		m.safeRun(handler, alert)
	}
}

func (m *Monitor) safeRun(handler AlertHandler, alert Alert) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorw("alert handler panicked", "kind", alert.Kind, "recovered", r)
		}
	}()
	handler(alert)
}

// Aggregate computes the on-demand aggregates over the current retention
// window.
type Aggregate struct {
	TotalQueries      uint64
	SuccessfulQueries uint64
	FailedQueries     uint64
	MinDurationUs     int64
	AvgDurationUs     float64
	MaxDurationUs     int64
	QueriesPerSecond  float64
	ErrorRate         float64
	ErrorHistogram    map[string]uint64
	TotalConnections  int
	ActiveConnections int
}

// Aggregate computes aggregates over the queries currently retained in the
// window (retention trimming is the sweeper's job; Aggregate reads whatever
// is currently present).
func (m *Monitor) Aggregate() Aggregate {
	m.mu.Lock()
	queries := append([]QueryMetric(nil), m.queries...)
	conns := make(map[string]ConnectionMetric, len(m.conns))
	for k, v := range m.conns {
		conns[k] = v
	}
	m.mu.Unlock()

	agg := Aggregate{ErrorHistogram: make(map[string]uint64)}
	if len(queries) == 0 {
		return agg
	}

	var sum int64
	agg.MinDurationUs = queries[0].DurationUs
	for _, q := range queries {
		agg.TotalQueries++
		if q.Success {
			agg.SuccessfulQueries++
		} else {
			agg.FailedQueries++
			agg.ErrorHistogram[q.ErrorMsg]++
		}
		sum += q.DurationUs
		if q.DurationUs < agg.MinDurationUs {
			agg.MinDurationUs = q.DurationUs
		}
		if q.DurationUs > agg.MaxDurationUs {
			agg.MaxDurationUs = q.DurationUs
		}
	}
	agg.AvgDurationUs = float64(sum) / float64(len(queries))

	windowSeconds := m.window.Seconds()
	if windowSeconds > 0 {
		agg.QueriesPerSecond = float64(agg.TotalQueries) / windowSeconds
	}
	if agg.TotalQueries > 0 {
		agg.ErrorRate = float64(agg.FailedQueries) / float64(agg.TotalQueries)
	}

	for _, c := range conns {
		agg.TotalConnections += c.Total
		agg.ActiveConnections += c.Active
	}

	return agg
}

// sortedErrorKeys returns the error histogram's keys in a stable order, for
// deterministic export.
func sortedErrorKeys(histogram map[string]uint64) []string {
	keys := make([]string, 0, len(histogram))
	for k := range histogram {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ErrorCount pairs one error message with its count, for ordered display.
type ErrorCount struct {
	Message string
	Count   uint64
}

// TopErrors returns the current window's error histogram as a
// deterministically ordered (by message) slice.
func (m *Monitor) TopErrors() []ErrorCount {
	agg := m.Aggregate()

	keys := sortedErrorKeys(agg.ErrorHistogram)
	out := make([]ErrorCount, len(keys))
	for i, k := range keys {
		out[i] = ErrorCount{Message: k, Count: agg.ErrorHistogram[k]}
	}
	return out
}
