// Package model defines the persistent data model for file transfers:
// manifests, per-chunk bookkeeping rows, and per-transfer statistics.
package model

import (
	"time"

	"github.com/sfts-dev/sfts/internal/bytesize"
)

// Chunk size bounds declared to senders. A manifest whose chunk_size falls
// outside this range is rejected at registration.
const (
	MinChunkSize = 64 * bytesize.KiB
	MaxChunkSize = 10 * bytesize.MiB
)

// Status is the lifecycle state of a transfer.
type Status string

const (
	// StatusActive means the transfer is accepting chunk uploads.
	StatusActive Status = "active"

	// StatusCompleted means all chunks were received and assembly succeeded.
	StatusCompleted Status = "completed"

	// StatusStale means the transfer idled past the sweep cutoff.
	// Stale transfers remain queryable but reject further uploads.
	StatusStale Status = "stale"

	// StatusFailed means assembly hit an irrecoverable error.
	StatusFailed Status = "failed"
)

// CanTransitionTo reports whether a manifest may move from s to next.
// Only active transfers transition; completed, stale, and failed are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	if s != StatusActive {
		return false
	}
	switch next {
	case StatusCompleted, StatusStale, StatusFailed:
		return true
	default:
		return false
	}
}

// Priority orders transfers for observers. It carries no scheduling weight
// on the coordinator itself.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Manifest describes one transfer. Unique by FileID.
type Manifest struct {
	FileID      string     `gorm:"column:file_id;primaryKey" json:"file_id"`
	Filename    string     `gorm:"column:filename;not null" json:"filename"`
	Size        int64      `gorm:"column:size;not null" json:"size"`
	ChunkSize   int64      `gorm:"column:chunk_size;not null" json:"chunk_size"`
	TotalChunks int        `gorm:"column:total_chunks;not null" json:"total_chunks"`
	Priority    Priority   `gorm:"column:priority;default:normal;index" json:"priority"`
	Status      Status     `gorm:"column:status;default:active;index" json:"status"`
	CreatedAt   time.Time  `gorm:"column:created_at" json:"created_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

// TableName implements the gorm table-name override.
func (Manifest) TableName() string { return "manifests" }

// Chunk is one per (file_id, chunk_id). Rows are created at manifest init
// with the sender-declared checksum and mutated only when a verified upload
// is committed.
type Chunk struct {
	FileID     string     `gorm:"column:file_id;primaryKey;index:idx_chunks_file_received,priority:1" json:"file_id"`
	ChunkID    int        `gorm:"column:chunk_id;primaryKey" json:"chunk_id"`
	Checksum   string     `gorm:"column:checksum;not null" json:"checksum"`
	Received   bool       `gorm:"column:received;default:false;index:idx_chunks_file_received,priority:2" json:"received"`
	ReceivedAt *time.Time `gorm:"column:received_at" json:"received_at,omitempty"`

	// RetryCount counts distinct committed writes for this chunk. Duplicate
	// uploads short-circuit before the commit, so this is not the number of
	// sender attempts.
	RetryCount int `gorm:"column:retry_count;default:0" json:"retry_count"`
}

// TableName implements the gorm table-name override.
func (Chunk) TableName() string { return "chunks" }

// TransferStats is one per file_id, updated on every committed chunk.
type TransferStats struct {
	FileID         string     `gorm:"column:file_id;primaryKey" json:"file_id"`
	StartTime      time.Time  `gorm:"column:start_time" json:"start_time"`
	EndTime        *time.Time `gorm:"column:end_time" json:"end_time,omitempty"`
	TotalBytes     int64      `gorm:"column:total_bytes" json:"total_bytes"`
	ChunksReceived int        `gorm:"column:chunks_received" json:"chunks_received"`
	Errors         int        `gorm:"column:errors" json:"errors"`
	AvgSpeed       float64    `gorm:"column:avg_speed" json:"avg_speed"`
}

// TableName implements the gorm table-name override.
func (TransferStats) TableName() string { return "transfer_stats" }

// ChunkMeta is the sender-declared metadata for one chunk, carried in the
// manifest registration payload.
type ChunkMeta struct {
	ChunkID  int    `json:"chunk_id"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// Progress is a point-in-time view of a transfer joined with its received
// chunk count.
type Progress struct {
	Manifest
	ReceivedChunks int     `json:"received_chunks"`
	Progress       float64 `json:"progress"`
}

// AllModels returns every model for schema auto-migration.
func AllModels() []any {
	return []any{
		&Manifest{},
		&Chunk{},
		&TransferStats{},
	}
}
