package registry

import (
	"context"
	"time"

	"github.com/sfts-dev/sfts/internal/logger"
	"github.com/sfts-dev/sfts/pkg/metrics"
	"github.com/sfts-dev/sfts/pkg/store"
)

// Sweeper periodically marks overdue active transfers as stale. A stale
// transfer keeps its staged chunks and stays queryable, but further chunk
// uploads are rejected.
type Sweeper struct {
	store    *store.GORMStore
	metrics  *metrics.Metrics
	interval time.Duration
	maxAge   time.Duration
}

// NewSweeper creates a Sweeper that runs every interval and sweeps
// active transfers registered more than maxAge ago. metrics may be nil.
func NewSweeper(s *store.GORMStore, m *metrics.Metrics, interval, maxAge time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Sweeper{
		store:    s,
		metrics:  m,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Run sweeps on a ticker until the context is cancelled.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	logger.Info("stale sweeper started", "interval", sw.interval, "max_age", sw.maxAge)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("stale sweeper stopped")
			return
		case <-ticker.C:
			sw.Sweep(ctx)
		}
	}
}

// Sweep runs one sweep pass.
func (sw *Sweeper) Sweep(ctx context.Context) {
	swept, err := sw.store.SweepStale(ctx, time.Now().Add(-sw.maxAge))
	if err != nil {
		logger.Error("stale sweep failed", "error", err)
		return
	}
	if len(swept) == 0 {
		return
	}

	sw.metrics.TransfersSwept(len(swept))
	for _, fileID := range swept {
		logger.Warn("transfer marked stale", "file_id", fileID, "max_age", sw.maxAge)
	}
}
