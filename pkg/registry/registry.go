// Package registry manages the transfer lifecycle around the store:
// manifest registration with validation, progress queries, and the stale
// transfer sweeper.
package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"

	"github.com/sfts-dev/sfts/internal/logger"
	"github.com/sfts-dev/sfts/pkg/events"
	"github.com/sfts-dev/sfts/pkg/metrics"
	"github.com/sfts-dev/sfts/pkg/model"
	"github.com/sfts-dev/sfts/pkg/staging"
	"github.com/sfts-dev/sfts/pkg/store"
)

// RegisterRequest is the manifest registration payload.
type RegisterRequest struct {
	FileID      string            `json:"file_id"`
	Filename    string            `json:"filename"`
	Size        int64             `json:"size"`
	ChunkSize   int64             `json:"chunk_size"`
	TotalChunks int               `json:"total_chunks"`
	Priority    string            `json:"priority"`
	Chunks      []model.ChunkMeta `json:"chunks"`
}

// Registration statuses reported to senders.
const (
	StatusOK      = "ok"
	StatusResumed = "resumed"
)

// RegisterResponse acknowledges a manifest registration.
type RegisterResponse struct {
	FileID string `json:"file_id"`
	Status string `json:"status"`

	// ReceivedChunks is set on resume so the sender can log how much of
	// the transfer is already done.
	ReceivedChunks int `json:"received_chunks,omitempty"`
}

// Registry is the manifest-facing service of the coordinator.
type Registry struct {
	store   *store.GORMStore
	staging *staging.Dir
	bus     *events.Bus
	metrics *metrics.Metrics
}

// New creates a Registry. metrics may be nil.
func New(s *store.GORMStore, dir *staging.Dir, bus *events.Bus, m *metrics.Metrics) *Registry {
	return &Registry{
		store:   s,
		staging: dir,
		bus:     bus,
		metrics: m,
	}
}

var checksumPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Register validates and persists a manifest. A missing file_id gets a
// fresh UUID. Re-registration with identical chunking resumes; with a
// different chunking it restarts the transfer and drops the previously
// staged chunks.
func (r *Registry) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	if req.FileID == "" {
		req.FileID = uuid.NewString()
	}
	if req.Priority == "" {
		req.Priority = string(model.PriorityNormal)
	}

	if err := validate(req); err != nil {
		return nil, err
	}

	manifest := &model.Manifest{
		FileID:      req.FileID,
		Filename:    filepath.Base(req.Filename),
		Size:        req.Size,
		ChunkSize:   req.ChunkSize,
		TotalChunks: req.TotalChunks,
		Priority:    model.Priority(req.Priority),
		Status:      model.StatusActive,
	}

	result, err := r.store.CreateManifest(ctx, manifest, req.Chunks)
	if err != nil {
		return nil, err
	}

	if result.Resumed {
		logger.Info("transfer resumed",
			"file_id", req.FileID,
			"received", result.ReceivedChunks,
			"total", req.TotalChunks)
		return &RegisterResponse{
			FileID:         req.FileID,
			Status:         StatusResumed,
			ReceivedChunks: result.ReceivedChunks,
		}, nil
	}

	if result.Replaced {
		// Staged files from the previous chunking are unusable now.
		if err := r.staging.RemoveTransfer(req.FileID); err != nil {
			logger.Warn("failed to drop stale staged chunks", "file_id", req.FileID, "error", err)
		}
		logger.Info("transfer re-registered with new chunking",
			"file_id", req.FileID,
			"chunk_size", req.ChunkSize,
			"total_chunks", req.TotalChunks)
	} else {
		logger.Info("transfer registered",
			"file_id", req.FileID,
			"filename", manifest.Filename,
			"size", req.Size,
			"total_chunks", req.TotalChunks,
			"priority", req.Priority)
	}

	r.metrics.TransferRegistered()
	r.bus.Publish(events.Event{
		Kind: events.KindManifest,
		Payload: events.ManifestPayload{
			FileID:      req.FileID,
			Filename:    manifest.Filename,
			Size:        req.Size,
			TotalChunks: req.TotalChunks,
			Priority:    req.Priority,
		},
	})

	return &RegisterResponse{FileID: req.FileID, Status: StatusOK}, nil
}

// List returns all transfers with their progress, newest first.
func (r *Registry) List(ctx context.Context) ([]*model.Progress, error) {
	return r.store.ListManifests(ctx)
}

// Get returns one transfer with its progress.
func (r *Registry) Get(ctx context.Context, fileID string) (*model.Progress, error) {
	return r.store.GetProgress(ctx, fileID)
}

// Missing returns the chunk IDs not yet received, ascending.
func (r *Registry) Missing(ctx context.Context, fileID string) ([]int, error) {
	return r.store.ListMissing(ctx, fileID)
}

func validate(req *RegisterRequest) error {
	if req.Filename == "" {
		return fmt.Errorf("%w: filename is required", model.ErrInvalidManifest)
	}
	if req.Size < 1 {
		return fmt.Errorf("%w: size must be at least 1 byte", model.ErrInvalidManifest)
	}
	if req.ChunkSize < model.MinChunkSize.Int64() || req.ChunkSize > model.MaxChunkSize.Int64() {
		return fmt.Errorf("%w: chunk_size %d outside [%s, %s]",
			model.ErrInvalidManifest, req.ChunkSize, model.MinChunkSize, model.MaxChunkSize)
	}
	if !model.Priority(req.Priority).Valid() {
		return fmt.Errorf("%w: unknown priority %q", model.ErrInvalidManifest, req.Priority)
	}

	wantChunks := int((req.Size + req.ChunkSize - 1) / req.ChunkSize)
	if req.TotalChunks != wantChunks {
		return fmt.Errorf("%w: total_chunks %d does not match size/chunk_size (want %d)",
			model.ErrInvalidManifest, req.TotalChunks, wantChunks)
	}
	if len(req.Chunks) != req.TotalChunks {
		return fmt.Errorf("%w: %d chunk records for total_chunks %d",
			model.ErrInvalidManifest, len(req.Chunks), req.TotalChunks)
	}

	var sum int64
	for i, c := range req.Chunks {
		if c.ChunkID != i {
			return fmt.Errorf("%w: chunk records must be ordered 0..%d",
				model.ErrInvalidManifest, req.TotalChunks-1)
		}
		if c.Size < 1 || c.Size > req.ChunkSize {
			return fmt.Errorf("%w: chunk %d size %d outside (0, chunk_size]",
				model.ErrInvalidManifest, i, c.Size)
		}
		if !checksumPattern.MatchString(c.Checksum) {
			return fmt.Errorf("%w: chunk %d checksum is not a SHA-256 hex digest",
				model.ErrInvalidManifest, i)
		}
		sum += c.Size
	}
	if sum != req.Size {
		return fmt.Errorf("%w: chunk sizes sum to %d, manifest declares %d",
			model.ErrInvalidManifest, sum, req.Size)
	}
	return nil
}
