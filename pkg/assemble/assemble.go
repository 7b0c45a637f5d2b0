// Package assemble reconstructs completed transfers by concatenating their
// staged chunks into the final output file.
package assemble

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sfts-dev/sfts/internal/logger"
	"github.com/sfts-dev/sfts/pkg/bufpool"
	"github.com/sfts-dev/sfts/pkg/events"
	"github.com/sfts-dev/sfts/pkg/metrics"
	"github.com/sfts-dev/sfts/pkg/model"
	"github.com/sfts-dev/sfts/pkg/staging"
	"github.com/sfts-dev/sfts/pkg/store"
)

// Result describes a finished assembly.
type Result struct {
	// Path is the assembled file's location in the staging area.
	Path string `json:"path"`

	// Size is the assembled file's size in bytes.
	Size int64 `json:"size"`

	// AlreadyAssembled is true when the transfer was assembled earlier and
	// the existing output was reused.
	AlreadyAssembled bool `json:"already_assembled,omitempty"`
}

// Assembler concatenates staged chunks into final files.
type Assembler struct {
	store   *store.GORMStore
	staging *staging.Dir
	bus     *events.Bus
	metrics *metrics.Metrics

	// mu serializes assembly so concurrent requests for the same transfer
	// do not race on the output file.
	mu sync.Mutex
}

// New creates an Assembler. metrics may be nil.
func New(s *store.GORMStore, dir *staging.Dir, bus *events.Bus, m *metrics.Metrics) *Assembler {
	return &Assembler{
		store:   s,
		staging: dir,
		bus:     bus,
		metrics: m,
	}
}

// Assemble builds the output file for a transfer whose chunks have all been
// received. It is idempotent: re-assembling a completed transfer returns
// the existing output. Each chunk is re-hashed during the copy, so on-disk
// corruption between upload and assembly is caught rather than propagated.
func (a *Assembler) Assemble(ctx context.Context, fileID string) (*Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	manifest, err := a.store.GetManifest(ctx, fileID)
	if err != nil {
		return nil, err
	}

	outPath := a.staging.AssembledPath(manifest.Filename)

	if manifest.Status == model.StatusCompleted {
		if info, err := os.Stat(outPath); err == nil {
			return &Result{Path: outPath, Size: info.Size(), AlreadyAssembled: true}, nil
		}
		// Output vanished after a prior assembly; rebuild it below.
	} else if manifest.Status != model.StatusActive {
		return nil, fmt.Errorf("%w: transfer is %s", model.ErrTransferNotActive, manifest.Status)
	}

	missing, err := a.store.ListMissing(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing chunk %d", model.ErrTransferIncomplete, missing[0])
	}
	for chunkID := 0; chunkID < manifest.TotalChunks; chunkID++ {
		if !a.staging.HasChunk(fileID, chunkID) {
			return nil, fmt.Errorf("%w: missing chunk %d", model.ErrTransferIncomplete, chunkID)
		}
	}

	size, err := a.concatenate(ctx, manifest, outPath)
	if err != nil {
		a.recordFailure(ctx, fileID, err)
		return nil, err
	}

	if manifest.Status != model.StatusCompleted {
		if err := a.store.SetStatus(ctx, fileID, model.StatusCompleted); err != nil {
			return nil, err
		}
	}

	a.metrics.FileAssembled()
	logger.Info("file assembled",
		"file_id", fileID,
		"filename", manifest.Filename,
		"path", outPath,
		"size", size)

	a.bus.Publish(events.Event{
		Kind: events.KindAssembled,
		Payload: events.AssembledPayload{
			FileID:   fileID,
			Filename: manifest.Filename,
			Path:     outPath,
			Size:     size,
		},
	})

	return &Result{Path: outPath, Size: size}, nil
}

// OutputPath returns the assembled file path for a completed transfer, or
// an error when the transfer is not completed yet.
func (a *Assembler) OutputPath(ctx context.Context, fileID string) (string, error) {
	manifest, err := a.store.GetManifest(ctx, fileID)
	if err != nil {
		return "", err
	}
	if manifest.Status != model.StatusCompleted {
		return "", fmt.Errorf("%w: transfer is %s", model.ErrTransferIncomplete, manifest.Status)
	}
	return a.staging.AssembledPath(manifest.Filename), nil
}

// concatenate streams every chunk in order into a temp file and renames it
// over the output path. The partial temp file is removed on any failure.
func (a *Assembler) concatenate(ctx context.Context, manifest *model.Manifest, outPath string) (int64, error) {
	tmp, err := os.CreateTemp(a.staging.Root(), "assemble_*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create assembly temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpName)
	}()

	var total int64
	for chunkID := 0; chunkID < manifest.TotalChunks; chunkID++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		n, err := a.appendChunk(ctx, tmp, manifest.FileID, chunkID)
		if err != nil {
			return 0, err
		}
		total += n
	}

	if total != manifest.Size {
		return 0, fmt.Errorf("assembled size %d does not match manifest size %d", total, manifest.Size)
	}

	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close assembly temp file: %w", err)
	}
	if err := os.Rename(tmpName, outPath); err != nil {
		return 0, fmt.Errorf("failed to finalize assembled file: %w", err)
	}
	return total, nil
}

func (a *Assembler) appendChunk(ctx context.Context, dst io.Writer, fileID string, chunkID int) (int64, error) {
	meta, err := a.store.GetChunk(ctx, fileID, chunkID)
	if err != nil {
		return 0, err
	}

	f, err := a.staging.OpenChunk(fileID, chunkID)
	if err != nil {
		return 0, fmt.Errorf("failed to open chunk %d: %w", chunkID, err)
	}
	defer f.Close()

	hasher := sha256.New()
	n, err := bufpool.Copy(dst, io.TeeReader(f, hasher))
	if err != nil {
		return 0, fmt.Errorf("failed to copy chunk %d: %w", chunkID, err)
	}

	if got := hex.EncodeToString(hasher.Sum(nil)); got != strings.ToLower(meta.Checksum) {
		return 0, fmt.Errorf("%w: chunk %d staged data is corrupt", model.ErrChecksumMismatch, chunkID)
	}
	return n, nil
}

func (a *Assembler) recordFailure(ctx context.Context, fileID string, cause error) {
	logger.Error("assembly failed", "file_id", fileID, "error", cause)

	if err := a.store.IncrementErrors(ctx, fileID); err != nil {
		logger.Warn("failed to record transfer error", "file_id", fileID, "error", err)
	}

	// Staged data corruption is irrecoverable: the sender verified these
	// bytes at upload time, so a re-upload cannot repair the transfer.
	if errors.Is(cause, model.ErrChecksumMismatch) {
		if err := a.store.SetStatus(ctx, fileID, model.StatusFailed); err != nil {
			logger.Warn("failed to mark transfer failed", "file_id", fileID, "error", err)
		}
	}

	a.bus.Publish(events.Event{
		Kind: events.KindError,
		Payload: events.ErrorPayload{
			FileID:  fileID,
			ChunkID: -1,
			Error:   cause.Error(),
		},
	})
}
