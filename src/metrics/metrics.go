package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RowsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railpunctuality_rows_loaded_total",
			Help: "Rows read from source datasets",
		},
		[]string{"dataset"},
	)

	RowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railpunctuality_rows_dropped_total",
			Help: "Rows or groups excluded during loading and aggregation",
		},
		[]string{"reason"},
	)

	CoercionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railpunctuality_coercion_failures_total",
			Help: "Values that could not be converted to numbers",
		},
		[]string{"dataset", "column"},
	)

	CorrectionsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railpunctuality_corrections_applied_total",
			Help: "Label correction rules applied to datasets",
		},
		[]string{"dataset", "rule"},
	)

	DatasetErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railpunctuality_dataset_errors_total",
			Help: "Datasets that failed to load",
		},
		[]string{"dataset"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "railpunctuality_stage_duration_seconds",
			Help:    "Pipeline stage latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
)

// WriteTextfile 将默认注册表导出为 node_exporter textfile 格式
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
