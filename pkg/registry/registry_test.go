package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfts-dev/sfts/pkg/events"
	"github.com/sfts-dev/sfts/pkg/model"
	"github.com/sfts-dev/sfts/pkg/staging"
	"github.com/sfts-dev/sfts/pkg/store"
)

const testChunkSize = 64 * 1024

func newTestRegistry(t *testing.T) (*Registry, *store.GORMStore, *events.Bus) {
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
	return New(s, dir, bus, nil), s, bus
}

func validRequest(totalChunks int) *RegisterRequest {
	req := &RegisterRequest{
		FileID:      "file-1",
		Filename:    "archive.tar",
		ChunkSize:   testChunkSize,
		TotalChunks: totalChunks,
		Priority:    "normal",
	}
	for i := 0; i < totalChunks; i++ {
		sum := sha256.Sum256([]byte{byte(i)})
		req.Chunks = append(req.Chunks, model.ChunkMeta{
			ChunkID:  i,
			Size:     testChunkSize,
			Checksum: hex.EncodeToString(sum[:]),
		})
	}
	req.Size = int64(totalChunks) * testChunkSize
	return req
}

func TestRegister(t *testing.T) {
	r, _, bus := newTestRegistry(t)
	sub := bus.Subscribe()
	defer sub.Close()

	resp, err := r.Register(context.Background(), validRequest(3))
	require.NoError(t, err)
	assert.Equal(t, "file-1", resp.FileID)
	assert.Equal(t, StatusOK, resp.Status)

	evt := <-sub.C()
	assert.Equal(t, events.KindManifest, evt.Kind)
	payload, ok := evt.Payload.(events.ManifestPayload)
	require.True(t, ok)
	assert.Equal(t, "archive.tar", payload.Filename)
	assert.Equal(t, 3, payload.TotalChunks)

	missing, err := r.Missing(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, missing)
}

func TestRegisterGeneratesFileID(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	req := validRequest(1)
	req.FileID = ""
	resp, err := r.Register(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.FileID)
}

func TestRegisterResume(t *testing.T) {
	r, s, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, validRequest(3))
	require.NoError(t, err)

	_, err = s.CommitChunk(ctx, "file-1", 1, testChunkSize)
	require.NoError(t, err)

	resp, err := r.Register(ctx, validRequest(3))
	require.NoError(t, err)
	assert.Equal(t, StatusResumed, resp.Status)
	assert.Equal(t, 1, resp.ReceivedChunks)
}

func TestRegisterSanitizesFilename(t *testing.T) {
	r, s, _ := newTestRegistry(t)

	req := validRequest(1)
	req.Filename = "../../etc/passwd"
	_, err := r.Register(context.Background(), req)
	require.NoError(t, err)

	m, err := s.GetManifest(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, "passwd", m.Filename)
}

func TestRegisterValidation(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*RegisterRequest)
	}{
		{"empty filename", func(r *RegisterRequest) { r.Filename = "" }},
		{"zero size", func(r *RegisterRequest) {
			r.Size = 0
			r.TotalChunks = 0
			r.Chunks = nil
		}},
		{"chunk size too small", func(r *RegisterRequest) { r.ChunkSize = 1024 }},
		{"chunk size too large", func(r *RegisterRequest) { r.ChunkSize = 11 * 1024 * 1024 }},
		{"bad priority", func(r *RegisterRequest) { r.Priority = "urgent" }},
		{"total mismatch", func(r *RegisterRequest) { r.TotalChunks = 5 }},
		{"missing chunk records", func(r *RegisterRequest) { r.Chunks = r.Chunks[:1] }},
		{"unordered chunk ids", func(r *RegisterRequest) {
			r.Chunks[0].ChunkID, r.Chunks[1].ChunkID = 1, 0
		}},
		{"bad checksum", func(r *RegisterRequest) { r.Chunks[0].Checksum = "nothex" }},
		{"size sum mismatch", func(r *RegisterRequest) { r.Chunks[0].Size = testChunkSize - 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest(2)
			tt.mutate(req)
			_, err := r.Register(ctx, req)
			assert.ErrorIs(t, err, model.ErrInvalidManifest)
		})
	}
}

func TestRegisterUppercaseChecksumAccepted(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	req := validRequest(1)
	req.Chunks[0].Checksum = strings.ToUpper(req.Chunks[0].Checksum)
	_, err := r.Register(context.Background(), req)
	assert.NoError(t, err)
}

func TestSweeperMarksOverdueTransfers(t *testing.T) {
	r, s, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, validRequest(2))
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, s.DB().Model(&model.Manifest{}).
		Where("file_id = ?", "file-1").
		Update("created_at", past).Error)

	sw := NewSweeper(s, nil, time.Hour, time.Hour)
	sw.Sweep(ctx)

	m, err := s.GetManifest(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusStale, m.Status)
}
