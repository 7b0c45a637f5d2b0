// Package uploader implements the sender side of a transfer: splitting the
// file, registering the manifest, driving the missing-chunk reconciliation
// loop with retries and adaptive chunk sizing, and requesting assembly.
package uploader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sfts-dev/sfts/internal/bytesize"
	"github.com/sfts-dev/sfts/internal/logger"
	"github.com/sfts-dev/sfts/pkg/apiclient"
	"github.com/sfts-dev/sfts/pkg/model"
	"github.com/sfts-dev/sfts/pkg/netmon"
)

// Sentinel errors callers map to exit codes.
var (
	// ErrAborted means the retry budget ran out mid-transfer. The partial
	// transfer stays resumable on the coordinator.
	ErrAborted = errors.New("transfer aborted")

	// ErrAssemblyFailed means every chunk arrived but the coordinator
	// could not produce the assembled file.
	ErrAssemblyFailed = errors.New("assembly failed")
)

// maxConsecutiveAborts is how many chunks may fail their full retry budget
// in a row before the transfer gives up.
const maxConsecutiveAborts = 5

// Config controls one sender.
type Config struct {
	// ChunkSize is the initial chunk size in bytes. Defaults to 256 KiB
	// and is clamped to the protocol limits.
	ChunkSize int64

	// Priority is the transfer priority: high, normal, or low.
	Priority string

	// MaxRetries is the per-chunk attempt budget. Defaults to 10.
	MaxRetries int

	// Adaptive enables chunk-size adaptation from observed conditions.
	Adaptive bool

	// RoundDelay is the pause between reconciliation rounds.
	// Defaults to 100ms.
	RoundDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = (256 * bytesize.KiB).Int64()
	}
	if c.ChunkSize < int64(model.MinChunkSize) {
		c.ChunkSize = int64(model.MinChunkSize)
	}
	if c.ChunkSize > int64(model.MaxChunkSize) {
		c.ChunkSize = int64(model.MaxChunkSize)
	}
	if c.Priority == "" {
		c.Priority = string(model.PriorityNormal)
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 10
	}
	if c.RoundDelay == 0 {
		c.RoundDelay = 100 * time.Millisecond
	}
}

// Result summarizes a finished transfer.
type Result struct {
	FileID         string
	RemotePath     string
	Size           int64
	BytesSent      int64
	Duration       time.Duration
	FinalChunkSize int64
	SuccessRate    float64
}

// Uploader drives transfers against one coordinator.
type Uploader struct {
	client  *apiclient.Client
	monitor *netmon.Monitor
	config  Config
}

// New creates an uploader. config may be zero-valued; defaults apply.
func New(client *apiclient.Client, config Config) *Uploader {
	config.applyDefaults()
	return &Uploader{
		client:  client,
		monitor: netmon.New(),
		config:  config,
	}
}

// Send transfers the file at path to the coordinator and requests assembly.
// It blocks until the transfer completes, fails, or ctx is cancelled.
func (u *Uploader) Send(ctx context.Context, path string) (*Result, error) {
	f, size, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fileID := uuid.NewString()
	declared := u.config.ChunkSize
	start := time.Now()

	chunks, err := splitFile(f, size, declared)
	if err != nil {
		return nil, fmt.Errorf("failed to split %s: %w", path, err)
	}

	logger.Info("starting transfer",
		"file", path,
		"file_id", fileID,
		"size", bytesize.ByteSize(size).String(),
		"chunks", len(chunks),
		"chunk_size", bytesize.ByteSize(declared).String(),
	)

	if err := u.register(ctx, fileID, path, size, declared, chunks); err != nil {
		return nil, err
	}

	var bytesSent int64
	consecutiveAborts := 0
	current := declared

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		missing, err := u.client.Missing(ctx, fileID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch missing chunks: %w", err)
		}
		if len(missing) == 0 {
			break
		}
		logger.Info("reconciling", "file_id", fileID, "missing", len(missing))

		if u.config.Adaptive && len(missing) > 1 {
			current = u.monitor.NextChunkSize(current)

			// Re-chunk only on a large drift. Until the manifest is
			// re-registered, uploads must stay on the declared
			// boundaries the coordinator knows about.
			if delta := math.Abs(float64(current - declared)); delta > 0.5*float64(declared) {
				logger.Info("re-chunking transfer",
					"file_id", fileID,
					"old_chunk_size", bytesize.ByteSize(declared).String(),
					"new_chunk_size", bytesize.ByteSize(current).String(),
					"success_rate", u.monitor.SuccessRate(),
					"avg_speed", u.monitor.AvgSpeed(),
				)
				declared = current
				chunks, err = splitFile(f, size, declared)
				if err != nil {
					return nil, fmt.Errorf("failed to re-split %s: %w", path, err)
				}
				if err := u.register(ctx, fileID, path, size, declared, chunks); err != nil {
					return nil, err
				}
				continue
			}
		}

		for _, chunkID := range missing {
			data, err := readChunk(f, chunkID, declared)
			if err != nil {
				return nil, fmt.Errorf("failed to read chunk %d: %w", chunkID, err)
			}
			if len(data) == 0 {
				logger.Warn("no data for chunk, skipping", "chunk_id", chunkID)
				continue
			}

			sum := sha256.Sum256(data)
			resp, err := u.uploadWithRetry(ctx, fileID, chunkID, hex.EncodeToString(sum[:]), data)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}

				consecutiveAborts++
				logger.Warn("chunk failed, refreshing missing list",
					"chunk_id", chunkID,
					"consecutive_failures", consecutiveAborts,
					"error", err,
				)
				if consecutiveAborts >= maxConsecutiveAborts {
					return nil, fmt.Errorf("%w: %d chunks failed in a row, last: %v",
						ErrAborted, consecutiveAborts, err)
				}
				break
			}

			consecutiveAborts = 0
			bytesSent += int64(len(data))
			logger.Debug("chunk uploaded",
				"chunk_id", chunkID,
				"received", resp.Received,
				"total", resp.Total,
				"progress", fmt.Sprintf("%.1f%%", resp.Progress),
			)
		}

		if err := sleepCtx(ctx, u.config.RoundDelay); err != nil {
			return nil, err
		}
	}

	remotePath, err := u.client.Assemble(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssemblyFailed, err)
	}

	result := &Result{
		FileID:         fileID,
		RemotePath:     remotePath,
		Size:           size,
		BytesSent:      bytesSent,
		Duration:       time.Since(start),
		FinalChunkSize: declared,
		SuccessRate:    u.monitor.SuccessRate(),
	}
	logger.Info("transfer complete",
		"file_id", fileID,
		"duration", result.Duration.String(),
		"bytes_sent", bytesize.ByteSize(bytesSent).String(),
		"success_rate", fmt.Sprintf("%.1f%%", result.SuccessRate*100),
		"remote_path", remotePath,
	)
	return result, nil
}

// register sends the manifest and logs a resume when the coordinator
// already holds chunks from an earlier attempt.
func (u *Uploader) register(ctx context.Context, fileID, path string, size, chunkSize int64, chunks []apiclient.ChunkRef) error {
	resp, err := u.client.Init(ctx, &apiclient.InitRequest{
		FileID:      fileID,
		Filename:    filepath.Base(path),
		Size:        size,
		ChunkSize:   chunkSize,
		TotalChunks: len(chunks),
		Priority:    u.config.Priority,
		Chunks:      chunks,
	})
	if err != nil {
		return fmt.Errorf("manifest registration failed: %w", err)
	}
	if resp.Resumed() {
		logger.Info("resuming transfer",
			"file_id", fileID,
			"received_chunks", resp.ReceivedChunks,
			"total_chunks", len(chunks),
		)
	}
	return nil
}

// uploadWithRetry uploads one chunk with the per-chunk retry budget.
// 4xx responses are permanent and fail the chunk immediately.
func (u *Uploader) uploadWithRetry(ctx context.Context, fileID string, chunkID int, checksum string, data []byte) (*apiclient.UploadResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= u.config.MaxRetries; attempt++ {
		start := time.Now()
		resp, err := u.client.UploadChunk(ctx, fileID, chunkID, checksum, data)
		if err == nil {
			u.monitor.RecordSuccess(int64(len(data)), time.Since(start))
			return resp, nil
		}
		u.monitor.RecordFailure()
		lastErr = err

		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.Permanent() {
			return nil, fmt.Errorf("chunk %d rejected: %w", chunkID, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt < u.config.MaxRetries {
			backoff := u.backoff(attempt)
			logger.Debug("retrying chunk",
				"chunk_id", chunkID,
				"attempt", attempt,
				"max_retries", u.config.MaxRetries,
				"backoff", backoff.String(),
				"error", err,
			)
			if err := sleepCtx(ctx, backoff); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("chunk %d failed after %d attempts: %w", chunkID, u.config.MaxRetries, lastErr)
}

// backoff picks the retry delay for the given attempt. A struggling link
// backs off exponentially, a healthy one retries quickly.
func (u *Uploader) backoff(attempt int) time.Duration {
	if u.monitor.SuccessRate() < 0.5 {
		d := time.Duration(math.Exp2(float64(attempt))) * time.Second
		if d > 30*time.Second {
			d = 30 * time.Second
		}
		return d
	}
	d := time.Duration(float64(attempt) * 0.5 * float64(time.Second))
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func openSource(path string) (*os.File, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot send %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, 0, fmt.Errorf("cannot send %s: not a regular file", path)
	}
	if info.Size() == 0 {
		return nil, 0, fmt.Errorf("cannot send %s: file is empty", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot send %s: %w", path, err)
	}
	return f, info.Size(), nil
}

// splitFile reads the file once and produces the chunk manifest entries for
// the given chunk size.
func splitFile(f *os.File, size, chunkSize int64) ([]apiclient.ChunkRef, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	total := int((size + chunkSize - 1) / chunkSize)
	chunks := make([]apiclient.ChunkRef, 0, total)
	buf := make([]byte, chunkSize)

	for chunkID := 0; ; chunkID++ {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			sum := sha256.Sum256(buf[:n])
			chunks = append(chunks, apiclient.ChunkRef{
				ChunkID:  chunkID,
				Size:     int64(n),
				Checksum: hex.EncodeToString(sum[:]),
			})
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return chunks, nil
}

// readChunk reads the bytes for one chunk at the declared chunking.
func readChunk(f *os.File, chunkID int, chunkSize int64) ([]byte, error) {
	buf := make([]byte, chunkSize)
	n, err := f.ReadAt(buf, int64(chunkID)*chunkSize)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
