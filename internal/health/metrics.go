// internal/health/metrics.go
package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolUsageGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "netra_db_connection_pool_usage",
			Help: "Fraction of the connection pool in use",
		},
		[]string{"database"},
	)

	queryLatencyGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "netra_db_avg_query_latency_ms",
			Help: "Average query latency over the rolling window",
		},
		[]string{"database"},
	)

	errorRateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "netra_db_error_rate",
			Help: "Database errors per minute over the rolling window",
		},
		[]string{"database"},
	)

	unresolvedAlertsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netra_db_unresolved_alerts",
			Help: "Number of unresolved health alerts",
		},
	)
)

func exportRecord(r Record) {
	if v, ok := r.Metrics[MetricPoolUsage]; ok {
		poolUsageGauge.WithLabelValues(r.Database).Set(v)
	}
	if v, ok := r.Metrics[MetricQueryLatency]; ok {
		queryLatencyGauge.WithLabelValues(r.Database).Set(v)
	}
	if v, ok := r.Metrics[MetricErrorRate]; ok {
		errorRateGauge.WithLabelValues(r.Database).Set(v)
	}
}
