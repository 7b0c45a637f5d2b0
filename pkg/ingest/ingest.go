// Package ingest implements the chunk ingestion pipeline: verify the
// uploaded bytes against the manifest, stage them to disk, and commit the
// receipt atomically.
package ingest

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/sfts-dev/sfts/internal/logger"
	"github.com/sfts-dev/sfts/pkg/events"
	"github.com/sfts-dev/sfts/pkg/metrics"
	"github.com/sfts-dev/sfts/pkg/model"
	"github.com/sfts-dev/sfts/pkg/staging"
	"github.com/sfts-dev/sfts/pkg/store"
)

// Result describes the outcome of one accepted chunk upload.
type Result struct {
	// Duplicate is true when the chunk had already been received. The
	// upload is acknowledged without rewriting anything.
	Duplicate bool `json:"duplicate,omitempty"`

	// Received is the number of received chunks after this upload.
	Received int `json:"received"`

	// Total is the manifest's declared chunk count.
	Total int `json:"total"`

	// Progress is Received/Total as a percentage.
	Progress float64 `json:"progress"`

	// Speed is this chunk's ingest throughput in bytes per second.
	Speed float64 `json:"speed"`

	// Complete is true when this upload delivered the final chunk.
	Complete bool `json:"complete,omitempty"`
}

// Ingestor verifies, stages, and commits uploaded chunks.
type Ingestor struct {
	store   *store.GORMStore
	staging *staging.Dir
	bus     *events.Bus
	metrics *metrics.Metrics
}

// New creates an Ingestor. metrics may be nil.
func New(s *store.GORMStore, dir *staging.Dir, bus *events.Bus, m *metrics.Metrics) *Ingestor {
	return &Ingestor{
		store:   s,
		staging: dir,
		bus:     bus,
		metrics: m,
	}
}

// Ingest processes one uploaded chunk. declared is the checksum the sender
// submitted alongside the bytes.
//
// The pipeline is: declared checksum verification, manifest lookup,
// transfer status check, chunk range check, manifest checksum cross-check,
// duplicate short-circuit, atomic stage write, then a compare-and-set
// commit. Under concurrent duplicate uploads exactly one caller commits;
// the others are reported as duplicates.
//
// The bytes must hash to both the declared checksum and the checksum stored
// at manifest init. The second check refuses uploads still in flight from a
// superseded chunking after a re-registration.
func (ing *Ingestor) Ingest(ctx context.Context, fileID string, chunkID int, declared string, data []byte) (*Result, error) {
	start := time.Now()

	// The declared checksum is checked before anything else: corrupt
	// bytes answer 400 even when the transfer is unknown or inactive.
	if err := verifyChecksum(data, declared); err != nil {
		ing.metrics.ChunkRejected(metrics.ReasonChecksum)
		ing.recordError(ctx, fileID, chunkID, err)
		return nil, err
	}

	manifest, err := ing.store.GetManifest(ctx, fileID)
	if err != nil {
		ing.metrics.ChunkRejected(metrics.ReasonNotFound)
		return nil, err
	}

	if manifest.Status != model.StatusActive {
		ing.metrics.ChunkRejected(metrics.ReasonNotActive)
		return nil, fmt.Errorf("%w: transfer is %s", model.ErrTransferNotActive, manifest.Status)
	}

	chunk, err := ing.store.GetChunk(ctx, fileID, chunkID)
	if err != nil {
		ing.metrics.ChunkRejected(metrics.ReasonNotFound)
		return nil, err
	}

	if err := verifyChecksum(data, chunk.Checksum); err != nil {
		ing.metrics.ChunkRejected(metrics.ReasonChecksum)
		ing.recordError(ctx, fileID, chunkID, err)
		return nil, fmt.Errorf("chunk does not match the registered manifest: %w", err)
	}

	if chunk.Received {
		ing.metrics.ChunkDuplicate()
		logger.Debug("duplicate chunk ignored", "file_id", fileID, "chunk_id", chunkID)
		return ing.duplicateResult(ctx, fileID, manifest.TotalChunks)
	}

	if err := ing.staging.WriteChunk(fileID, chunkID, data); err != nil {
		ing.metrics.ChunkRejected(metrics.ReasonStorage)
		ing.recordError(ctx, fileID, chunkID, err)
		return nil, err
	}

	commit, err := ing.store.CommitChunk(ctx, fileID, chunkID, int64(len(data)))
	if err != nil {
		ing.metrics.ChunkRejected(metrics.ReasonStorage)
		return nil, err
	}

	speed := float64(0)
	if elapsed := time.Since(start).Seconds(); elapsed > 0 {
		speed = float64(len(data)) / elapsed
	}

	result := &Result{
		Received: commit.Received,
		Total:    commit.Total,
		Progress: progress(commit.Received, commit.Total),
		Speed:    speed,
	}

	if !commit.Won {
		// A concurrent upload committed first. The stage write above
		// rewrote the file with identical verified bytes, so nothing
		// needs undoing.
		ing.metrics.ChunkDuplicate()
		result.Duplicate = true
		return result, nil
	}

	ing.metrics.ChunkCommitted(int64(len(data)), time.Since(start))
	logger.Debug("chunk committed",
		"file_id", fileID,
		"chunk_id", chunkID,
		"received", commit.Received,
		"total", commit.Total)

	ing.bus.Publish(events.Event{
		Kind: events.KindChunk,
		Payload: events.ChunkPayload{
			FileID:    fileID,
			ChunkID:   chunkID,
			Received:  commit.Received,
			Total:     commit.Total,
			Filename:  manifest.Filename,
			ChunkSize: len(data),
			Speed:     speed,
		},
	})

	if commit.Received == commit.Total {
		result.Complete = true
		ing.announceComplete(ctx, manifest)
	}

	return result, nil
}

// announceComplete publishes the transfer_complete event. Only the caller
// that committed the final chunk reaches this, so the event fires once.
func (ing *Ingestor) announceComplete(ctx context.Context, manifest *model.Manifest) {
	ing.metrics.TransferCompleted()

	payload := events.TransferCompletePayload{
		FileID:   manifest.FileID,
		Filename: manifest.Filename,
	}

	if stats, err := ing.store.GetStats(ctx, manifest.FileID); err == nil {
		payload.TotalBytes = stats.TotalBytes
		payload.AvgSpeed = stats.AvgSpeed
		if stats.EndTime != nil {
			payload.Duration = stats.EndTime.Sub(stats.StartTime).Seconds()
		}
	}

	logger.Info("transfer complete",
		"file_id", manifest.FileID,
		"filename", manifest.Filename,
		"total_bytes", payload.TotalBytes)

	ing.bus.Publish(events.Event{
		Kind:    events.KindTransferComplete,
		Payload: payload,
	})
}

func (ing *Ingestor) duplicateResult(ctx context.Context, fileID string, total int) (*Result, error) {
	received, err := ing.store.CountReceived(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return &Result{
		Duplicate: true,
		Received:  received,
		Total:     total,
		Progress:  progress(received, total),
	}, nil
}

// recordError bumps the transfer's error counter and publishes an error
// event. Both are best-effort; the original failure is what the caller
// reports.
func (ing *Ingestor) recordError(ctx context.Context, fileID string, chunkID int, cause error) {
	if err := ing.store.IncrementErrors(ctx, fileID); err != nil {
		logger.Warn("failed to record transfer error", "file_id", fileID, "error", err)
	}

	ing.bus.Publish(events.Event{
		Kind: events.KindError,
		Payload: events.ErrorPayload{
			FileID:  fileID,
			ChunkID: chunkID,
			Error:   cause.Error(),
		},
	})
}

// verifyChecksum hashes data and compares it to the manifest-declared hex
// digest in constant time.
func verifyChecksum(data []byte, want string) error {
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])

	if subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(want))) != 1 {
		return fmt.Errorf("%w: declared %s, computed %s", model.ErrChecksumMismatch, want, got)
	}
	return nil
}

func progress(received, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(received) / float64(total) * 100
}
