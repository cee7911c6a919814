// Package metrics provides the Prometheus collectors of dir-archiver and the
// HTTP server exposing them on /metrics.
//
// Every collector set has a New function registering with the default
// registry and a WithRegistry variant for tests:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewObjectStoreMetricsWithRegistry(reg)
//	store := objectstore.NewInstrumentedStore(s3store, m)
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dir_archiver"

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Object store operation label values.
const (
	OpObjPut        = "put"
	OpObjGet        = "get"
	OpObjHead       = "head"
	OpObjDelete     = "delete"
	OpObjList       = "list"
	OpObjUploadPart = "upload_part"
)

// Bytes direction label values.
const (
	DirectionRead  = "read"
	DirectionWrite = "write"
)

// DefaultObjectStoreLatencyBuckets spans small metadata calls to 50 MiB part
// uploads over slow links.
var DefaultObjectStoreLatencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// ObjectStoreMetrics implements objectstore.MetricsRecorder.
type ObjectStoreMetrics struct {
	// Labels: operation, status.
	LatencyHistogram *prometheus.HistogramVec
	RequestsTotal    *prometheus.CounterVec
	// Labels: direction (read, write).
	BytesTotal *prometheus.CounterVec
}

// NewObjectStoreMetrics registers object store metrics with the default registry.
func NewObjectStoreMetrics() *ObjectStoreMetrics {
	return NewObjectStoreMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewObjectStoreMetricsWithRegistry registers object store metrics with reg.
func NewObjectStoreMetricsWithRegistry(reg prometheus.Registerer) *ObjectStoreMetrics {
	f := promauto.With(reg)
	return &ObjectStoreMetrics{
		LatencyHistogram: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "objectstore",
				Name:      "operation_latency_seconds",
				Help:      "Object store operation latency in seconds, by operation and status.",
				Buckets:   DefaultObjectStoreLatencyBuckets,
			},
			[]string{"operation", "status"},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "objectstore",
				Name:      "operations_total",
				Help:      "Total object store operations, by operation and status.",
			},
			[]string{"operation", "status"},
		),
		BytesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "objectstore",
				Name:      "bytes_total",
				Help:      "Total bytes transferred, by direction.",
			},
			[]string{"direction"},
		),
	}
}

func status(success bool) string {
	if success {
		return StatusSuccess
	}
	return StatusFailure
}

// RecordOperation observes latency and counts the request.
func (m *ObjectStoreMetrics) RecordOperation(operation string, durationSeconds float64, success bool) {
	s := status(success)
	m.LatencyHistogram.WithLabelValues(operation, s).Observe(durationSeconds)
	m.RequestsTotal.WithLabelValues(operation, s).Inc()
}

func (m *ObjectStoreMetrics) recordBytes(direction string, success bool, n int64) {
	if success && n > 0 {
		m.BytesTotal.WithLabelValues(direction).Add(float64(n))
	}
}

func (m *ObjectStoreMetrics) RecordPut(durationSeconds float64, success bool, bytes int64) {
	m.RecordOperation(OpObjPut, durationSeconds, success)
	m.recordBytes(DirectionWrite, success, bytes)
}

func (m *ObjectStoreMetrics) RecordUploadPart(durationSeconds float64, success bool, bytes int64) {
	m.RecordOperation(OpObjUploadPart, durationSeconds, success)
	m.recordBytes(DirectionWrite, success, bytes)
}

func (m *ObjectStoreMetrics) RecordGet(durationSeconds float64, success bool, bytes int64) {
	m.RecordOperation(OpObjGet, durationSeconds, success)
	m.recordBytes(DirectionRead, success, bytes)
}

func (m *ObjectStoreMetrics) RecordHead(durationSeconds float64, success bool) {
	m.RecordOperation(OpObjHead, durationSeconds, success)
}

func (m *ObjectStoreMetrics) RecordDelete(durationSeconds float64, success bool) {
	m.RecordOperation(OpObjDelete, durationSeconds, success)
}

func (m *ObjectStoreMetrics) RecordList(durationSeconds float64, success bool) {
	m.RecordOperation(OpObjList, durationSeconds, success)
}
