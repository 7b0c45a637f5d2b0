// Package receiver downloads assembled files from the coordinator and
// verifies their integrity on the way to disk.
package receiver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sfts-dev/sfts/internal/bytesize"
	"github.com/sfts-dev/sfts/internal/logger"
	"github.com/sfts-dev/sfts/pkg/apiclient"
)

// DownloadResult describes one completed download.
type DownloadResult struct {
	FileID   string
	Path     string
	Size     int64
	Checksum string
	Duration time.Duration
}

// Receiver fetches assembled files from one coordinator.
type Receiver struct {
	client *apiclient.Client
}

// New creates a receiver.
func New(client *apiclient.Client) *Receiver {
	return &Receiver{client: client}
}

// List returns the transfers known to the coordinator.
func (r *Receiver) List(ctx context.Context) ([]apiclient.FileInfo, error) {
	return r.client.ListFiles(ctx)
}

// Get returns one transfer with chunk-level progress.
func (r *Receiver) Get(ctx context.Context, fileID string) (*apiclient.FileDetail, error) {
	return r.client.GetFile(ctx, fileID)
}

// Download fetches the assembled file into outputPath. When outputPath is
// empty or a directory, the coordinator-side filename is used. The SHA-256
// of the stream is computed en route and the byte count is checked against
// the manifest size; a mismatch removes the partial file.
func (r *Receiver) Download(ctx context.Context, fileID, outputPath string) (*DownloadResult, error) {
	detail, err := r.client.GetFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", fileID, err)
	}

	path, err := resolveOutputPath(outputPath, detail.Filename)
	if err != nil {
		return nil, err
	}

	logger.Info("downloading file",
		"file_id", fileID,
		"filename", detail.Filename,
		"size", bytesize.ByteSize(detail.Size).String(),
		"output", path,
	)

	tmp, err := os.CreateTemp(filepath.Dir(path), ".sfts-download-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	start := time.Now()
	hasher := sha256.New()

	n, err := r.client.Download(ctx, fileID, io.MultiWriter(tmp, hasher))
	if err != nil {
		cleanup()
		return nil, err
	}
	if n != detail.Size {
		cleanup()
		return nil, fmt.Errorf("size mismatch for %s: expected %d bytes, got %d", fileID, detail.Size, n)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to finish output file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to move output into place: %w", err)
	}

	result := &DownloadResult{
		FileID:   fileID,
		Path:     path,
		Size:     n,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
		Duration: time.Since(start),
	}
	logger.Info("download complete",
		"file_id", fileID,
		"path", path,
		"checksum", result.Checksum,
		"duration", result.Duration.String(),
	)
	return result, nil
}

// Verify computes the SHA-256 of a local file and compares it to expected
// when given. It returns the computed checksum.
func Verify(path, expected string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot verify %s: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("cannot verify %s: %w", path, err)
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	if expected != "" && sum != expected {
		return sum, fmt.Errorf("checksum mismatch for %s: expected %s, got %s", path, expected, sum)
	}
	return sum, nil
}

func resolveOutputPath(outputPath, filename string) (string, error) {
	if outputPath == "" {
		return filepath.Base(filename), nil
	}
	info, err := os.Stat(outputPath)
	if err == nil && info.IsDir() {
		return filepath.Join(outputPath, filepath.Base(filename)), nil
	}
	return outputPath, nil
}
