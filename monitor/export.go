package monitor

import (
	"bytes"
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Snapshot is the monitor's JSON export shape: the exact key set demanded
// of every implementation, so field names and JSON tags are load-bearing.
type Snapshot struct {
	TotalQueries          uint64  `json:"total_queries"`
	SuccessfulQueries     uint64  `json:"successful_queries"`
	FailedQueries         uint64  `json:"failed_queries"`
	AvgQueryTimeUs        float64 `json:"avg_query_time_us"`
	QueriesPerSecond      float64 `json:"queries_per_second"`
	ErrorRate             float64 `json:"error_rate"`
	TotalConnections      int     `json:"total_connections"`
	ActiveConnections     int     `json:"active_connections"`
	ConnectionUtilization float64 `json:"connection_utilization"`
}

// Snapshot renders the current aggregate window as the standard JSON key
// set.
func (m *Monitor) Snapshot() Snapshot {
	agg := m.Aggregate()

	var utilization float64
	if agg.TotalConnections > 0 {
		utilization = float64(agg.ActiveConnections) / float64(agg.TotalConnections)
	}

	return Snapshot{
		TotalQueries:          agg.TotalQueries,
		SuccessfulQueries:     agg.SuccessfulQueries,
		FailedQueries:         agg.FailedQueries,
		AvgQueryTimeUs:        agg.AvgDurationUs,
		QueriesPerSecond:      agg.QueriesPerSecond,
		ErrorRate:             agg.ErrorRate,
		TotalConnections:      agg.TotalConnections,
		ActiveConnections:     agg.ActiveConnections,
		ConnectionUtilization: utilization,
	}
}

// ExportJSON renders Snapshot as JSON.
func (m *Monitor) ExportJSON() ([]byte, error) {
	return json.Marshal(m.Snapshot())
}

const metricNamespace = "database"

var (
	queriesTotalDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricNamespace, "", "queries_total"),
		"Total number of queries executed.", nil, nil,
	)
	queryDurationDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricNamespace, "", "query_duration_microseconds"),
		"Average query duration over the current retention window.", nil, nil,
	)
	errorRateDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricNamespace, "", "error_rate"),
		"Query error rate over the current retention window.", nil, nil,
	)
	connectionsActiveDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricNamespace, "", "connections_active"),
		"Active connections across all registered pools.", nil, nil,
	)
	queriesByOutcomeDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricNamespace, "", "queries_outcome_total"),
		"Total number of queries executed, by outcome.", []string{"outcome"}, nil,
	)
)

// collector is a prometheus.Collector snapshotting m at Collect time,
// matching prometheus-mysqld_exporter's NewDesc-per-metric, Collect-on-
// demand shape.
type collector struct{ m *Monitor }

func (c collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- queriesTotalDesc
	ch <- queryDurationDesc
	ch <- errorRateDesc
	ch <- connectionsActiveDesc
	ch <- queriesByOutcomeDesc
}

func (c collector) Collect(ch chan<- prometheus.Metric) {
	agg := c.m.Aggregate()

	ch <- prometheus.MustNewConstMetric(queriesTotalDesc, prometheus.CounterValue, float64(c.m.queryTotal.Total()))
	ch <- prometheus.MustNewConstMetric(queryDurationDesc, prometheus.GaugeValue, agg.AvgDurationUs)
	ch <- prometheus.MustNewConstMetric(errorRateDesc, prometheus.GaugeValue, agg.ErrorRate)
	ch <- prometheus.MustNewConstMetric(connectionsActiveDesc, prometheus.GaugeValue, float64(agg.ActiveConnections))
	ch <- prometheus.MustNewConstMetric(queriesByOutcomeDesc, prometheus.CounterValue, float64(c.m.querySuccess.Total()), "success")
	ch <- prometheus.MustNewConstMetric(queriesByOutcomeDesc, prometheus.CounterValue, float64(c.m.queryFailed.Total()), "failure")
}

// ExportPrometheus renders the monitor's metrics in Prometheus text
// exposition format via a throwaway registry, so the HELP/TYPE comments and
// sample formatting come straight from client_golang/expfmt rather than a
// hand-rolled writer.
func (m *Monitor) ExportPrometheus() (string, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collector{m: m}); err != nil {
		return "", err
	}

	families, err := reg.Gather()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			return "", err
		}
	}

	return buf.String(), nil
}
