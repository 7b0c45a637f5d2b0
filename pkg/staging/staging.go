// Package staging manages the coordinator's on-disk layout: one directory
// per transfer holding its chunk files, plus assembled output files.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir is a staging area rooted at a single directory. Chunk writes are
// atomic: data lands in a temp file that is renamed into place, so a chunk
// file either does not exist or is complete.
type Dir struct {
	root string
}

// New creates the staging root if needed and returns a Dir.
func New(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Dir{root: root}, nil
}

// Root returns the staging root path.
func (d *Dir) Root() string {
	return d.root
}

// ChunkPath returns the path of a chunk file. Path elements derived from
// request input are flattened to their base name.
func (d *Dir) ChunkPath(fileID string, chunkID int) string {
	return filepath.Join(d.transferDir(fileID), fmt.Sprintf("chunk_%06d.bin", chunkID))
}

// AssembledPath returns the output path for an assembled file.
func (d *Dir) AssembledPath(filename string) string {
	return filepath.Join(d.root, "assembled_"+filepath.Base(filename))
}

func (d *Dir) transferDir(fileID string) string {
	return filepath.Join(d.root, filepath.Base(fileID))
}

// WriteChunk atomically persists chunk data. The write goes to a temp file
// in the transfer directory and is renamed over the final path, so readers
// never observe a partial chunk.
func (d *Dir) WriteChunk(fileID string, chunkID int, data []byte) error {
	dir := d.transferDir(fileID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create transfer directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "chunk_*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp chunk file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write chunk data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp chunk file: %w", err)
	}

	if err := os.Rename(tmpName, d.ChunkPath(fileID, chunkID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to finalize chunk file: %w", err)
	}
	return nil
}

// OpenChunk opens a chunk file for reading.
func (d *Dir) OpenChunk(fileID string, chunkID int) (*os.File, error) {
	return os.Open(d.ChunkPath(fileID, chunkID))
}

// HasChunk reports whether a chunk file exists on disk.
func (d *Dir) HasChunk(fileID string, chunkID int) bool {
	_, err := os.Stat(d.ChunkPath(fileID, chunkID))
	return err == nil
}

// RemoveTransfer deletes a transfer's chunk directory.
func (d *Dir) RemoveTransfer(fileID string) error {
	return os.RemoveAll(d.transferDir(fileID))
}
