// Package netmon tracks observed upload conditions on the sender and turns
// them into an adaptive chunk-size hint.
package netmon

import (
	"sync"
	"time"

	"github.com/sfts-dev/sfts/internal/bytesize"
	"github.com/sfts-dev/sfts/pkg/model"
)

// speedWindow is how many recent per-chunk speed samples feed the average.
const speedWindow = 10

// Tuning thresholds for the chunk-size policy.
const (
	growSuccessRate   = 0.95
	growMinSpeed      = float64(1 * bytesize.MiB)
	shrinkSuccessRate = 0.8
	shrinkMinSpeed    = float64(100 * bytesize.KiB)

	growFactor   = 1.2
	shrinkFactor = 0.7
)

// Monitor accumulates per-chunk upload outcomes. It is safe for concurrent
// use so parallel uploads can share one instance.
type Monitor struct {
	mu        sync.Mutex
	successes int
	failures  int
	speeds    []float64
}

// New creates an empty monitor.
func New() *Monitor {
	return &Monitor{
		speeds: make([]float64, 0, speedWindow),
	}
}

// RecordSuccess records one uploaded chunk. The observed speed in bytes per
// second joins the rolling window; a non-positive duration counts as zero
// speed rather than skewing the average upward.
func (m *Monitor) RecordSuccess(bytes int64, duration time.Duration) {
	var speed float64
	if duration > 0 {
		speed = float64(bytes) / duration.Seconds()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.successes++
	m.speeds = append(m.speeds, speed)
	if len(m.speeds) > speedWindow {
		m.speeds = m.speeds[1:]
	}
}

// RecordFailure records one failed chunk upload attempt.
func (m *Monitor) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

// AvgSpeed returns the mean of the rolling speed window in bytes per
// second, or 0 when nothing has been observed yet.
func (m *Monitor) AvgSpeed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.speeds) == 0 {
		return 0
	}
	var sum float64
	for _, s := range m.speeds {
		sum += s
	}
	return sum / float64(len(m.speeds))
}

// SuccessRate returns successes / (successes + failures), or 1.0 before
// any outcome has been recorded.
func (m *Monitor) SuccessRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.successes + m.failures
	if total == 0 {
		return 1.0
	}
	return float64(m.successes) / float64(total)
}

// NextChunkSize suggests the chunk size to use given the current one.
// Healthy links grow by 20% up to the ceiling, struggling links shrink by
// 30% down to the floor, and everything in between keeps the current size.
func (m *Monitor) NextChunkSize(current int64) int64 {
	rate := m.SuccessRate()
	speed := m.AvgSpeed()

	switch {
	case rate > growSuccessRate && speed > growMinSpeed:
		next := int64(float64(current) * growFactor)
		if next > int64(model.MaxChunkSize) {
			next = int64(model.MaxChunkSize)
		}
		return next

	case rate < shrinkSuccessRate || speed < shrinkMinSpeed:
		next := int64(float64(current) * shrinkFactor)
		if next < int64(model.MinChunkSize) {
			next = int64(model.MinChunkSize)
		}
		return next

	default:
		return current
	}
}
