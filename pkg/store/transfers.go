package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sfts-dev/sfts/pkg/model"
)

// InitResult reports the outcome of a manifest registration.
type InitResult struct {
	// Resumed is true when an identical manifest already existed.
	Resumed bool

	// Replaced is true when an existing manifest was re-registered with a
	// different chunking, discarding all previous chunk state.
	Replaced bool

	// ReceivedChunks is the number of chunks already received for a
	// resumed transfer, zero otherwise.
	ReceivedChunks int
}

// CommitResult reports the outcome of committing a verified chunk.
type CommitResult struct {
	// Won is true when this call flipped the chunk to received. False
	// means a concurrent or earlier upload already committed it.
	Won bool

	// Received is the number of received chunks after this call.
	Received int

	// Total is the manifest's declared chunk count.
	Total int
}

// CreateManifest registers a transfer and its per-chunk rows in one
// transaction. Re-registering with identical size and chunking resumes the
// existing transfer and reports how many chunks were already received.
// Re-registering with a different chunking replaces the whole chunk row
// set atomically: the transfer restarts, and in-flight uploads declared
// under the old chunking fail verification against the fresh checksums.
func (s *GORMStore) CreateManifest(ctx context.Context, m *model.Manifest, chunks []model.ChunkMeta) (*InitResult, error) {
	result := &InitResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Manifest
		err := tx.Where("file_id = ?", m.FileID).First(&existing).Error
		switch {
		case err == nil && existing.Size == m.Size &&
			existing.ChunkSize == m.ChunkSize &&
			existing.TotalChunks == m.TotalChunks:
			var received int64
			if err := tx.Model(&model.Chunk{}).
				Where("file_id = ? AND received = ?", m.FileID, true).
				Count(&received).Error; err != nil {
				return err
			}

			result.Resumed = true
			result.ReceivedChunks = int(received)
			return nil

		case err == nil:
			result.Replaced = true
			if err := tx.Where("file_id = ?", m.FileID).Delete(&model.Chunk{}).Error; err != nil {
				return err
			}
			if err := tx.Where("file_id = ?", m.FileID).Delete(&model.TransferStats{}).Error; err != nil {
				return err
			}
			if err := tx.Where("file_id = ?", m.FileID).Delete(&model.Manifest{}).Error; err != nil {
				return err
			}

		case err != gorm.ErrRecordNotFound:
			return err
		}

		m.Status = model.StatusActive
		m.CompletedAt = nil
		m.CreatedAt = time.Now()
		if err := tx.Create(m).Error; err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("concurrent registration for %s: %w", m.FileID, err)
			}
			return err
		}

		rows := make([]model.Chunk, 0, len(chunks))
		for _, c := range chunks {
			rows = append(rows, model.Chunk{
				FileID:   m.FileID,
				ChunkID:  c.ChunkID,
				Checksum: c.Checksum,
			})
		}
		if err := tx.CreateInBatches(rows, 500).Error; err != nil {
			return err
		}

		stats := model.TransferStats{
			FileID:    m.FileID,
			StartTime: m.CreatedAt,
		}
		return tx.Create(&stats).Error
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetManifest returns the manifest for a file ID.
func (s *GORMStore) GetManifest(ctx context.Context, fileID string) (*model.Manifest, error) {
	var m model.Manifest
	if err := s.db.WithContext(ctx).Where("file_id = ?", fileID).First(&m).Error; err != nil {
		return nil, convertNotFoundError(err, model.ErrManifestNotFound)
	}
	return &m, nil
}

// GetChunk returns the chunk row for (fileID, chunkID).
func (s *GORMStore) GetChunk(ctx context.Context, fileID string, chunkID int) (*model.Chunk, error) {
	var c model.Chunk
	if err := s.db.WithContext(ctx).
		Where("file_id = ? AND chunk_id = ?", fileID, chunkID).
		First(&c).Error; err != nil {
		return nil, convertNotFoundError(err, model.ErrChunkNotFound)
	}
	return &c, nil
}

// CommitChunk atomically marks a chunk received and folds its size into the
// transfer statistics. The received flag is flipped with a compare-and-set
// so exactly one of any set of concurrent duplicate uploads wins.
func (s *GORMStore) CommitChunk(ctx context.Context, fileID string, chunkID int, size int64) (*CommitResult, error) {
	result := &CommitResult{}
	now := time.Now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Chunk{}).
			Where("file_id = ? AND chunk_id = ? AND received = ?", fileID, chunkID, false).
			Updates(map[string]any{
				"received":    true,
				"received_at": now,
				"retry_count": gorm.Expr("retry_count + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		result.Won = res.RowsAffected > 0

		var m model.Manifest
		if err := tx.Where("file_id = ?", fileID).First(&m).Error; err != nil {
			return convertNotFoundError(err, model.ErrManifestNotFound)
		}
		result.Total = m.TotalChunks

		var received int64
		if err := tx.Model(&model.Chunk{}).
			Where("file_id = ? AND received = ?", fileID, true).
			Count(&received).Error; err != nil {
			return err
		}
		result.Received = int(received)

		if !result.Won {
			return nil
		}

		var stats model.TransferStats
		if err := tx.Where("file_id = ?", fileID).First(&stats).Error; err != nil {
			return err
		}
		stats.TotalBytes += size
		stats.ChunksReceived = result.Received
		if elapsed := now.Sub(stats.StartTime).Seconds(); elapsed > 0 {
			stats.AvgSpeed = float64(stats.TotalBytes) / elapsed
		}
		if result.Received == result.Total {
			stats.EndTime = &now
		}
		return tx.Save(&stats).Error
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// IncrementErrors bumps the error counter for a transfer. Missing stats
// rows are ignored so the caller can report the original failure.
func (s *GORMStore) IncrementErrors(ctx context.Context, fileID string) error {
	return s.db.WithContext(ctx).
		Model(&model.TransferStats{}).
		Where("file_id = ?", fileID).
		Update("errors", gorm.Expr("errors + 1")).Error
}

// ListMissing returns the chunk IDs not yet received, ascending.
func (s *GORMStore) ListMissing(ctx context.Context, fileID string) ([]int, error) {
	if _, err := s.GetManifest(ctx, fileID); err != nil {
		return nil, err
	}

	var ids []int
	if err := s.db.WithContext(ctx).
		Model(&model.Chunk{}).
		Where("file_id = ? AND received = ?", fileID, false).
		Order("chunk_id asc").
		Pluck("chunk_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// CountReceived returns the number of received chunks for a transfer.
func (s *GORMStore) CountReceived(ctx context.Context, fileID string) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&model.Chunk{}).
		Where("file_id = ? AND received = ?", fileID, true).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SetStatus moves a transfer through its lifecycle. Transitions out of any
// terminal state fail with ErrIllegalTransition, except that re-completing a
// completed transfer is a no-op so assembly stays idempotent.
func (s *GORMStore) SetStatus(ctx context.Context, fileID string, next model.Status) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.Manifest
		if err := tx.Where("file_id = ?", fileID).First(&m).Error; err != nil {
			return convertNotFoundError(err, model.ErrManifestNotFound)
		}

		if m.Status == next {
			return nil
		}
		if !m.Status.CanTransitionTo(next) {
			return model.ErrIllegalTransition
		}

		updates := map[string]any{"status": next}
		if next == model.StatusCompleted {
			now := time.Now()
			updates["completed_at"] = now
		}
		return tx.Model(&m).Updates(updates).Error
	})
}

// SweepStale marks active transfers registered before the cutoff as stale
// and returns their file IDs. Age is measured from registration, not from
// the last chunk receipt, so a slow transfer goes stale at the same
// deadline as an abandoned one.
func (s *GORMStore) SweepStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Manifest{}).
			Where("status = ? AND created_at < ?", model.StatusActive, cutoff).
			Pluck("file_id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		return tx.Model(&model.Manifest{}).
			Where("file_id IN ?", ids).
			Update("status", model.StatusStale).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListManifests returns all transfers with their progress, newest first.
func (s *GORMStore) ListManifests(ctx context.Context) ([]*model.Progress, error) {
	var manifests []model.Manifest
	if err := s.db.WithContext(ctx).
		Order("created_at desc").
		Find(&manifests).Error; err != nil {
		return nil, err
	}

	out := make([]*model.Progress, 0, len(manifests))
	for _, m := range manifests {
		received, err := s.CountReceived(ctx, m.FileID)
		if err != nil {
			return nil, err
		}
		out = append(out, progressOf(m, received))
	}
	return out, nil
}

// GetProgress returns one transfer with its progress.
func (s *GORMStore) GetProgress(ctx context.Context, fileID string) (*model.Progress, error) {
	m, err := s.GetManifest(ctx, fileID)
	if err != nil {
		return nil, err
	}
	received, err := s.CountReceived(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return progressOf(*m, received), nil
}

// GetStats returns the transfer statistics for a file ID.
func (s *GORMStore) GetStats(ctx context.Context, fileID string) (*model.TransferStats, error) {
	var stats model.TransferStats
	if err := s.db.WithContext(ctx).Where("file_id = ?", fileID).First(&stats).Error; err != nil {
		return nil, convertNotFoundError(err, model.ErrManifestNotFound)
	}
	return &stats, nil
}

func progressOf(m model.Manifest, received int) *model.Progress {
	p := &model.Progress{
		Manifest:       m,
		ReceivedChunks: received,
	}
	if m.TotalChunks > 0 {
		p.Progress = float64(received) / float64(m.TotalChunks) * 100
	}
	return p
}
