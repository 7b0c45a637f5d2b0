package staging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndOpenChunk(t *testing.T) {
	d, err := New(filepath.Join(t.TempDir(), "staging"))
	require.NoError(t, err)

	data := []byte("chunk payload")
	require.NoError(t, d.WriteChunk("file-1", 3, data))

	assert.True(t, d.HasChunk("file-1", 3))
	assert.False(t, d.HasChunk("file-1", 4))

	f, err := d.OpenChunk("file-1", 3)
	require.NoError(t, err)
	defer f.Close()

	got, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWriteChunkOverwrite(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, d.WriteChunk("file-1", 0, []byte("first")))
	require.NoError(t, d.WriteChunk("file-1", 0, []byte("second")))

	got, err := os.ReadFile(d.ChunkPath("file-1", 0))
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestWriteChunkLeavesNoTempFiles(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, d.WriteChunk("file-1", 0, []byte("data")))

	entries, err := os.ReadDir(filepath.Join(d.Root(), "file-1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "chunk_000000.bin", entries[0].Name())
}

func TestPathsStayInsideRoot(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)

	p := d.ChunkPath("../../etc", 0)
	assert.True(t, filepath.HasPrefix(p, d.Root()))

	a := d.AssembledPath("../passwd")
	assert.Equal(t, filepath.Join(d.Root(), "assembled_passwd"), a)
}

func TestRemoveTransfer(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, d.WriteChunk("file-1", 0, []byte("data")))
	require.NoError(t, d.RemoveTransfer("file-1"))
	assert.False(t, d.HasChunk("file-1", 0))
}
