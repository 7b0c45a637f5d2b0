package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfts-dev/sfts/pkg/model"
)

func newTestStore(t *testing.T) *GORMStore {
	t.Helper()

	s, err := New(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func testManifest(fileID string, totalChunks int) (*model.Manifest, []model.ChunkMeta) {
	m := &model.Manifest{
		FileID:      fileID,
		Filename:    "data.bin",
		Size:        int64(totalChunks) * 1024,
		ChunkSize:   1024,
		TotalChunks: totalChunks,
		Priority:    model.PriorityNormal,
		Status:      model.StatusActive,
	}

	chunks := make([]model.ChunkMeta, 0, totalChunks)
	for i := 0; i < totalChunks; i++ {
		chunks = append(chunks, model.ChunkMeta{
			ChunkID:  i,
			Size:     1024,
			Checksum: fmt.Sprintf("checksum-%d", i),
		})
	}
	return m, chunks
}

func TestCreateManifest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, chunks := testManifest("file-1", 4)
	result, err := s.CreateManifest(ctx, m, chunks)
	require.NoError(t, err)
	assert.False(t, result.Resumed)
	assert.Equal(t, 0, result.ReceivedChunks)

	got, err := s.GetManifest(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, "data.bin", got.Filename)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Equal(t, 4, got.TotalChunks)

	missing, err := s.ListMissing(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, missing)

	stats, err := s.GetStats(ctx, "file-1")
	require.NoError(t, err)
	assert.False(t, stats.StartTime.IsZero())
	assert.Equal(t, int64(0), stats.TotalBytes)
}

func TestCreateManifestResume(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, chunks := testManifest("file-1", 4)
	_, err := s.CreateManifest(ctx, m, chunks)
	require.NoError(t, err)

	_, err = s.CommitChunk(ctx, "file-1", 0, 1024)
	require.NoError(t, err)
	_, err = s.CommitChunk(ctx, "file-1", 2, 1024)
	require.NoError(t, err)

	// Re-register with identical chunking resumes.
	m2, chunks2 := testManifest("file-1", 4)
	result, err := s.CreateManifest(ctx, m2, chunks2)
	require.NoError(t, err)
	assert.True(t, result.Resumed)
	assert.Equal(t, 2, result.ReceivedChunks)

	missing, err := s.ListMissing(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, missing)
}

func TestCreateManifestReplacesChunking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, chunks := testManifest("file-1", 4)
	_, err := s.CreateManifest(ctx, m, chunks)
	require.NoError(t, err)
	_, err = s.CommitChunk(ctx, "file-1", 0, 1024)
	require.NoError(t, err)

	// Re-registering with a different chunking discards all prior state.
	m2, chunks2 := testManifest("file-1", 8)
	result, err := s.CreateManifest(ctx, m2, chunks2)
	require.NoError(t, err)
	assert.True(t, result.Replaced)
	assert.False(t, result.Resumed)
	assert.Equal(t, 0, result.ReceivedChunks)

	got, err := s.GetManifest(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, 8, got.TotalChunks)
	assert.Equal(t, model.StatusActive, got.Status)

	missing, err := s.ListMissing(ctx, "file-1")
	require.NoError(t, err)
	assert.Len(t, missing, 8)

	stats, err := s.GetStats(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalBytes)
}

func TestCommitChunk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, chunks := testManifest("file-1", 2)
	_, err := s.CreateManifest(ctx, m, chunks)
	require.NoError(t, err)

	result, err := s.CommitChunk(ctx, "file-1", 0, 1024)
	require.NoError(t, err)
	assert.True(t, result.Won)
	assert.Equal(t, 1, result.Received)
	assert.Equal(t, 2, result.Total)

	// A duplicate commit loses the compare-and-set and changes nothing.
	result, err = s.CommitChunk(ctx, "file-1", 0, 1024)
	require.NoError(t, err)
	assert.False(t, result.Won)
	assert.Equal(t, 1, result.Received)

	stats, err := s.GetStats(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1024), stats.TotalBytes)
	assert.Equal(t, 1, stats.ChunksReceived)
	assert.Nil(t, stats.EndTime)

	chunk, err := s.GetChunk(ctx, "file-1", 0)
	require.NoError(t, err)
	assert.True(t, chunk.Received)
	assert.NotNil(t, chunk.ReceivedAt)
	assert.Equal(t, 1, chunk.RetryCount)

	// Final chunk closes out the stats.
	result, err = s.CommitChunk(ctx, "file-1", 1, 1024)
	require.NoError(t, err)
	assert.True(t, result.Won)
	assert.Equal(t, 2, result.Received)

	stats, err = s.GetStats(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2048), stats.TotalBytes)
	assert.NotNil(t, stats.EndTime)
}

func TestIncrementErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, chunks := testManifest("file-1", 1)
	_, err := s.CreateManifest(ctx, m, chunks)
	require.NoError(t, err)

	require.NoError(t, s.IncrementErrors(ctx, "file-1"))
	require.NoError(t, s.IncrementErrors(ctx, "file-1"))

	stats, err := s.GetStats(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Errors)
}

func TestSetStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, chunks := testManifest("file-1", 1)
	_, err := s.CreateManifest(ctx, m, chunks)
	require.NoError(t, err)

	require.NoError(t, s.SetStatus(ctx, "file-1", model.StatusCompleted))

	got, err := s.GetManifest(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	// Re-completing is a no-op, other transitions out of a terminal
	// state are rejected.
	assert.NoError(t, s.SetStatus(ctx, "file-1", model.StatusCompleted))
	assert.ErrorIs(t, s.SetStatus(ctx, "file-1", model.StatusStale), model.ErrIllegalTransition)

	assert.ErrorIs(t, s.SetStatus(ctx, "missing", model.StatusStale), model.ErrManifestNotFound)
}

func TestSweepStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mOld, chunksOld := testManifest("file-old", 2)
	_, err := s.CreateManifest(ctx, mOld, chunksOld)
	require.NoError(t, err)

	mFresh, chunksFresh := testManifest("file-fresh", 2)
	_, err = s.CreateManifest(ctx, mFresh, chunksFresh)
	require.NoError(t, err)

	// file-slow is as old as file-old but received a chunk just now.
	// Age counts from registration, so recent activity does not keep
	// it out of the sweep.
	mSlow, chunksSlow := testManifest("file-slow", 2)
	_, err = s.CreateManifest(ctx, mSlow, chunksSlow)
	require.NoError(t, err)
	_, err = s.CommitChunk(ctx, "file-slow", 0, 1024)
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	for _, id := range []string{"file-old", "file-slow"} {
		require.NoError(t, s.db.Model(&model.Manifest{}).
			Where("file_id = ?", id).
			Update("created_at", past).Error)
	}

	swept, err := s.SweepStale(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"file-old", "file-slow"}, swept)

	for _, id := range []string{"file-old", "file-slow"} {
		got, err := s.GetManifest(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusStale, got.Status, id)
	}

	got, err := s.GetManifest(ctx, "file-fresh")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)
}

func TestProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, chunks := testManifest("file-1", 4)
	_, err := s.CreateManifest(ctx, m, chunks)
	require.NoError(t, err)
	_, err = s.CommitChunk(ctx, "file-1", 0, 1024)
	require.NoError(t, err)

	p, err := s.GetProgress(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.ReceivedChunks)
	assert.InDelta(t, 25.0, p.Progress, 0.01)

	all, err := s.ListManifests(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "file-1", all[0].FileID)

	_, err = s.GetProgress(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrManifestNotFound)
}
