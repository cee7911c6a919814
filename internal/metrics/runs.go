package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run operation label values.
const (
	OpBackup  = "backup"
	OpRestore = "restore"
	OpRotate  = "rotate"
)

// RunMetrics tracks backup, restore and rotation runs.
type RunMetrics struct {
	// Labels: operation, status.
	RunsTotal *prometheus.CounterVec
	// Labels: operation.
	RunDuration *prometheus.HistogramVec
	// Labels: operation.
	LastSuccess *prometheus.GaugeVec

	ArchiveBytes *prometheus.CounterVec

	SnapshotsKept          prometheus.Gauge
	SnapshotsDeleted       prometheus.Counter
	SnapshotDeleteFailures prometheus.Counter
}

// NewRunMetrics registers run metrics with the default registry.
func NewRunMetrics() *RunMetrics {
	return NewRunMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewRunMetricsWithRegistry registers run metrics with reg.
func NewRunMetricsWithRegistry(reg prometheus.Registerer) *RunMetrics {
	f := promauto.With(reg)
	return &RunMetrics{
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Completed runs, by operation and status.",
			},
			[]string{"operation", "status"},
		),
		RunDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Run duration in seconds, by operation.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
			},
			[]string{"operation"},
		),
		LastSuccess: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful run, by operation.",
			},
			[]string{"operation"},
		),
		ArchiveBytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "archive",
				Name:      "bytes_total",
				Help:      "Compressed archive bytes produced, by source directory.",
			},
			[]string{"dir"},
		),
		SnapshotsKept: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "snapshots_kept",
			Help:      "Snapshots kept by the last rotation.",
		}),
		SnapshotsDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "snapshots_deleted_total",
			Help:      "Snapshots deleted by rotations.",
		}),
		SnapshotDeleteFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "snapshot_delete_failures_total",
			Help:      "Snapshot deletions that failed and were left for the next rotation.",
		}),
	}
}

// RecordRun counts a finished run and, on success, stamps the last-success gauge.
func (m *RunMetrics) RecordRun(operation string, started time.Time, success bool) {
	m.RunsTotal.WithLabelValues(operation, status(success)).Inc()
	m.RunDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if success {
		m.LastSuccess.WithLabelValues(operation).SetToCurrentTime()
	}
}

func (m *RunMetrics) RecordArchive(dir string, bytes int64) {
	m.ArchiveBytes.WithLabelValues(dir).Add(float64(bytes))
}

func (m *RunMetrics) RecordRotation(kept, deleted, failed int) {
	m.SnapshotsKept.Set(float64(kept))
	m.SnapshotsDeleted.Add(float64(deleted))
	m.SnapshotDeleteFailures.Add(float64(failed))
}
