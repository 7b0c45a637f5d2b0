// Package metrics provides Prometheus metrics for the coordinator's
// ingest and assembly paths.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Label constants for metrics.
const (
	LabelStatus = "status"
	LabelReason = "reason"
)

// Status constants for chunk ingestion.
const (
	StatusCommitted = "committed"
	StatusDuplicate = "duplicate"
	StatusRejected  = "rejected"
)

// Reason constants for rejected chunks.
const (
	ReasonChecksum   = "checksum_mismatch"
	ReasonNotFound   = "not_found"
	ReasonNotActive  = "transfer_not_active"
	ReasonBadRequest = "bad_request"
	ReasonStorage    = "storage_error"
)

// Metrics provides Prometheus metrics for transfer processing.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	chunksTotal    *prometheus.CounterVec
	chunkBytes     prometheus.Counter
	ingestDuration prometheus.Histogram

	transfersRegistered prometheus.Counter
	transfersCompleted  prometheus.Counter
	filesAssembled      prometheus.Counter
	transfersSwept      prometheus.Counter
}

// NewMetrics creates and registers transfer metrics.
// If registry is nil, metrics are created but not registered (useful for testing).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		chunksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sfts",
				Subsystem: "coordinator",
				Name:      "chunks_total",
				Help:      "Total number of chunk uploads by outcome",
			},
			[]string{LabelStatus, LabelReason},
		),

		chunkBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sfts",
				Subsystem: "coordinator",
				Name:      "chunk_bytes_total",
				Help:      "Total bytes of committed chunk data",
			},
		),

		ingestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "sfts",
				Subsystem: "coordinator",
				Name:      "ingest_duration_milliseconds",
				Help:      "Duration of chunk ingestion in milliseconds",
				Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
			},
		),

		transfersRegistered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sfts",
				Subsystem: "coordinator",
				Name:      "transfers_registered_total",
				Help:      "Total number of registered transfers",
			},
		),

		transfersCompleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sfts",
				Subsystem: "coordinator",
				Name:      "transfers_completed_total",
				Help:      "Total number of transfers that received every chunk",
			},
		),

		filesAssembled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sfts",
				Subsystem: "coordinator",
				Name:      "files_assembled_total",
				Help:      "Total number of successfully assembled files",
			},
		),

		transfersSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sfts",
				Subsystem: "coordinator",
				Name:      "transfers_swept_total",
				Help:      "Total number of transfers marked stale by the sweeper",
			},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.chunksTotal,
			m.chunkBytes,
			m.ingestDuration,
			m.transfersRegistered,
			m.transfersCompleted,
			m.filesAssembled,
			m.transfersSwept,
		)
	}

	return m
}

// ChunkCommitted records a committed chunk of the given size.
func (m *Metrics) ChunkCommitted(size int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.chunksTotal.WithLabelValues(StatusCommitted, "").Inc()
	m.chunkBytes.Add(float64(size))
	m.ingestDuration.Observe(float64(elapsed.Milliseconds()))
}

// ChunkDuplicate records a duplicate chunk upload.
func (m *Metrics) ChunkDuplicate() {
	if m == nil {
		return
	}
	m.chunksTotal.WithLabelValues(StatusDuplicate, "").Inc()
}

// ChunkRejected records a rejected chunk upload.
func (m *Metrics) ChunkRejected(reason string) {
	if m == nil {
		return
	}
	m.chunksTotal.WithLabelValues(StatusRejected, reason).Inc()
}

// TransferRegistered records a new transfer registration.
func (m *Metrics) TransferRegistered() {
	if m == nil {
		return
	}
	m.transfersRegistered.Inc()
}

// TransferCompleted records a transfer that received every chunk.
func (m *Metrics) TransferCompleted() {
	if m == nil {
		return
	}
	m.transfersCompleted.Inc()
}

// FileAssembled records a successfully assembled file.
func (m *Metrics) FileAssembled() {
	if m == nil {
		return
	}
	m.filesAssembled.Inc()
}

// TransfersSwept records transfers marked stale by the sweeper.
func (m *Metrics) TransfersSwept(count int) {
	if m == nil {
		return
	}
	m.transfersSwept.Add(float64(count))
}
