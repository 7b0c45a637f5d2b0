package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfts-dev/sfts/pkg/events"
	"github.com/sfts-dev/sfts/pkg/model"
	"github.com/sfts-dev/sfts/pkg/staging"
	"github.com/sfts-dev/sfts/pkg/store"
)

type testEnv struct {
	ingestor *Ingestor
	store    *store.GORMStore
	staging  *staging.Dir
	bus      *events.Bus
	chunks   [][]byte
}

func newTestEnv(t *testing.T, chunkData [][]byte) *testEnv {
	t.Helper()

	root := t.TempDir()

	s, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(root, "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	dir, err := staging.New(filepath.Join(root, "staging"))
	require.NoError(t, err)

	bus := events.NewBus()

	manifest := &model.Manifest{
		FileID:      "file-1",
		Filename:    "data.bin",
		ChunkSize:   int64(len(chunkData[0])),
		TotalChunks: len(chunkData),
		Priority:    model.PriorityNormal,
		Status:      model.StatusActive,
	}
	metas := make([]model.ChunkMeta, 0, len(chunkData))
	for i, data := range chunkData {
		sum := sha256.Sum256(data)
		manifest.Size += int64(len(data))
		metas = append(metas, model.ChunkMeta{
			ChunkID:  i,
			Size:     int64(len(data)),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}
	_, err = s.CreateManifest(context.Background(), manifest, metas)
	require.NoError(t, err)

	return &testEnv{
		ingestor: New(s, dir, bus, nil),
		store:    s,
		staging:  dir,
		bus:      bus,
		chunks:   chunkData,
	}
}

func checksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func drain(sub *events.Subscription) []events.Event {
	var out []events.Event
	for {
		select {
		case evt := <-sub.C():
			out = append(out, evt)
		default:
			return out
		}
	}
}

func TestIngestCommit(t *testing.T) {
	env := newTestEnv(t, [][]byte{[]byte("hello chunk")})
	sub := env.bus.Subscribe()
	defer sub.Close()

	result, err := env.ingestor.Ingest(context.Background(), "file-1", 0, checksumOf(env.chunks[0]), env.chunks[0])
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, 1, result.Received)
	assert.Equal(t, 1, result.Total)
	assert.True(t, result.Complete)
	assert.InDelta(t, 100.0, result.Progress, 0.01)

	assert.True(t, env.staging.HasChunk("file-1", 0))

	kinds := make([]string, 0)
	for _, evt := range drain(sub) {
		kinds = append(kinds, evt.Kind)
	}
	assert.Equal(t, []string{events.KindChunk, events.KindTransferComplete}, kinds)
}

func TestIngestChecksumMismatch(t *testing.T) {
	env := newTestEnv(t, [][]byte{[]byte("expected data")})
	sub := env.bus.Subscribe()
	defer sub.Close()

	corrupted := []byte("corrupted data")
	_, err := env.ingestor.Ingest(context.Background(), "file-1", 0, checksumOf(env.chunks[0]), corrupted)
	assert.ErrorIs(t, err, model.ErrChecksumMismatch)

	// Nothing staged, error recorded, chunk still missing.
	assert.False(t, env.staging.HasChunk("file-1", 0))

	stats, err := env.store.GetStats(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)

	missing, err := env.store.ListMissing(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, missing)

	evts := drain(sub)
	require.Len(t, evts, 1)
	assert.Equal(t, events.KindError, evts[0].Kind)
}

func TestIngestChecksumCheckedFirst(t *testing.T) {
	env := newTestEnv(t, [][]byte{[]byte("data")})
	ctx := context.Background()

	// Corrupt bytes are a checksum mismatch even when the transfer is
	// unknown, not a lookup failure.
	_, err := env.ingestor.Ingest(ctx, "missing", 0, checksumOf([]byte("data")), []byte("corrupted"))
	assert.ErrorIs(t, err, model.ErrChecksumMismatch)
	assert.NotErrorIs(t, err, model.ErrManifestNotFound)

	// Same when the transfer exists but is no longer active.
	require.NoError(t, env.store.SetStatus(ctx, "file-1", model.StatusStale))
	_, err = env.ingestor.Ingest(ctx, "file-1", 0, checksumOf(env.chunks[0]), []byte("corrupted"))
	assert.ErrorIs(t, err, model.ErrChecksumMismatch)
	assert.NotErrorIs(t, err, model.ErrTransferNotActive)
}

func TestIngestDuplicate(t *testing.T) {
	env := newTestEnv(t, [][]byte{[]byte("chunk a"), []byte("chunk b")})
	ctx := context.Background()

	_, err := env.ingestor.Ingest(ctx, "file-1", 0, checksumOf(env.chunks[0]), env.chunks[0])
	require.NoError(t, err)

	result, err := env.ingestor.Ingest(ctx, "file-1", 0, checksumOf(env.chunks[0]), env.chunks[0])
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Equal(t, 1, result.Received)
	assert.Equal(t, 2, result.Total)

	// The duplicate did not touch stats or retry counts.
	stats, err := env.store.GetStats(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, int64(len(env.chunks[0])), stats.TotalBytes)
	assert.Equal(t, 1, stats.ChunksReceived)

	chunk, err := env.store.GetChunk(ctx, "file-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, chunk.RetryCount)
}

func TestIngestRejectsSupersededChunking(t *testing.T) {
	env := newTestEnv(t, [][]byte{[]byte("registered bytes")})
	sub := env.bus.Subscribe()
	defer sub.Close()

	// Bytes and declared checksum agree with each other but not with the
	// checksum stored at manifest init.
	stale := []byte("bytes from an older chunking")
	_, err := env.ingestor.Ingest(context.Background(), "file-1", 0, checksumOf(stale), stale)
	assert.ErrorIs(t, err, model.ErrChecksumMismatch)
	assert.False(t, env.staging.HasChunk("file-1", 0))
}

func TestIngestUnknownTransfer(t *testing.T) {
	env := newTestEnv(t, [][]byte{[]byte("data")})

	_, err := env.ingestor.Ingest(context.Background(), "missing", 0, checksumOf([]byte("data")), []byte("data"))
	assert.ErrorIs(t, err, model.ErrManifestNotFound)
}

func TestIngestChunkOutOfRange(t *testing.T) {
	env := newTestEnv(t, [][]byte{[]byte("data")})

	_, err := env.ingestor.Ingest(context.Background(), "file-1", 5, checksumOf([]byte("data")), []byte("data"))
	assert.ErrorIs(t, err, model.ErrChunkNotFound)
}

func TestIngestRejectsInactiveTransfer(t *testing.T) {
	env := newTestEnv(t, [][]byte{[]byte("data")})
	ctx := context.Background()

	require.NoError(t, env.store.SetStatus(ctx, "file-1", model.StatusStale))

	_, err := env.ingestor.Ingest(ctx, "file-1", 0, checksumOf(env.chunks[0]), env.chunks[0])
	assert.ErrorIs(t, err, model.ErrTransferNotActive)
}

func TestIngestConcurrentDuplicates(t *testing.T) {
	env := newTestEnv(t, [][]byte{[]byte("contended chunk")})
	ctx := context.Background()

	const uploaders = 8
	results := make([]*Result, uploaders)
	errs := make([]error, uploaders)

	var wg sync.WaitGroup
	for i := 0; i < uploaders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.ingestor.Ingest(ctx, "file-1", 0, checksumOf(env.chunks[0]), env.chunks[0])
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < uploaders; i++ {
		require.NoError(t, errs[i])
		if !results[i].Duplicate {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent upload commits")

	stats, err := env.store.GetStats(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, int64(len(env.chunks[0])), stats.TotalBytes)

	chunk, err := env.store.GetChunk(ctx, "file-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, chunk.RetryCount)
}

func TestIngestTransferCompleteFiresOnce(t *testing.T) {
	env := newTestEnv(t, [][]byte{[]byte("chunk a"), []byte("chunk b")})
	sub := env.bus.Subscribe()
	defer sub.Close()
	ctx := context.Background()

	for i, data := range env.chunks {
		_, err := env.ingestor.Ingest(ctx, "file-1", i, checksumOf(data), data)
		require.NoError(t, err)
	}
	// Replays after completion are acknowledged as duplicates.
	result, err := env.ingestor.Ingest(ctx, "file-1", 1, checksumOf(env.chunks[1]), env.chunks[1])
	require.NoError(t, err)
	assert.True(t, result.Duplicate)

	completions := 0
	for _, evt := range drain(sub) {
		if evt.Kind == events.KindTransferComplete {
			completions++
		}
	}
	assert.Equal(t, 1, completions)
}

func TestVerifyChecksumCaseInsensitive(t *testing.T) {
	data := []byte("payload")
	sum := sha256.Sum256(data)
	upper := fmt.Sprintf("%X", sum)

	assert.NoError(t, verifyChecksum(data, upper))
	assert.Error(t, verifyChecksum(data, "deadbeef"))
}
