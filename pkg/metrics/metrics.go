// Package metrics defines the Prometheus metrics exported by bucketmover.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// S3 operation metrics
var (
	S3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketmover_s3_operations_total",
			Help: "Total number of S3 operations by type and status",
		},
		[]string{"operation", "status"},
	)

	S3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bucketmover_s3_operation_duration_seconds",
			Help:    "Duration of S3 operations in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
		},
		[]string{"operation"},
	)

	TransferBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketmover_transfer_bytes_total",
			Help: "Total bytes transferred through the streaming paths",
		},
		[]string{"direction"},
	)
)

// Migration metrics
var (
	MigrationObjectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketmover_migration_objects_total",
			Help: "Total number of migrated objects by terminal outcome",
		},
		[]string{"outcome"},
	)

	MigrationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketmover_migration_runs_total",
			Help: "Total number of migration runs by completion status",
		},
		[]string{"status"},
	)

	MigrationObjectsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bucketmover_migration_objects_in_flight",
			Help: "Number of objects currently being processed by migration workers",
		},
	)

	MigrationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bucketmover_migration_duration_seconds",
			Help:    "Duration of complete migration runs in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 14400},
		},
	)
)
