// Package events provides a best-effort in-process event bus. The
// coordinator publishes transfer lifecycle events and any number of
// subscribers (the SSE endpoint, tests) consume them. Publishing never
// blocks: a subscriber that falls behind loses events.
package events

import (
	"sync"

	"github.com/sfts-dev/sfts/internal/logger"
)

// Event kinds published by the coordinator.
const (
	KindManifest         = "manifest"
	KindChunk            = "chunk"
	KindTransferComplete = "transfer_complete"
	KindAssembled        = "assembled"
	KindError            = "error"
)

// Event is one bus message. Payload is one of the payload structs below.
type Event struct {
	Kind    string `json:"event"`
	Payload any    `json:"data"`
}

// ManifestPayload announces a newly registered transfer.
type ManifestPayload struct {
	FileID      string `json:"file_id"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	TotalChunks int    `json:"total_chunks"`
	Priority    string `json:"priority"`
}

// ChunkPayload announces a committed chunk.
type ChunkPayload struct {
	FileID    string  `json:"file_id"`
	ChunkID   int     `json:"chunk_id"`
	Received  int     `json:"received"`
	Total     int     `json:"total"`
	Filename  string  `json:"filename"`
	ChunkSize int     `json:"chunk_size"`
	Speed     float64 `json:"speed"`
}

// TransferCompletePayload announces that every chunk of a transfer arrived.
type TransferCompletePayload struct {
	FileID     string  `json:"file_id"`
	Filename   string  `json:"filename"`
	TotalBytes int64   `json:"total_bytes"`
	Duration   float64 `json:"duration"`
	AvgSpeed   float64 `json:"avg_speed"`
}

// AssembledPayload announces a successfully assembled file.
type AssembledPayload struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
}

// ErrorPayload announces a rejected or failed operation.
type ErrorPayload struct {
	FileID  string `json:"file_id"`
	ChunkID int    `json:"chunk_id"`
	Error   string `json:"error"`
}

const subscriberBuffer = 64

// Bus fans events out to subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// Subscription is one subscriber's event stream.
type Subscription struct {
	bus *Bus
	ch  chan Event

	closeOnce sync.Once
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber. The caller must Close the
// subscription when done.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		bus: b,
		ch:  make(chan Event, subscriberBuffer),
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Publish delivers an event to every subscriber without blocking. Events
// for subscribers with a full buffer are dropped.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			logger.Debug("event dropped for slow subscriber", "kind", evt.Kind)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// C returns the subscription's event channel. It is closed by Close.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}
