package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFanOut(t *testing.T) {
	bus := NewBus()

	sub1 := bus.Subscribe()
	defer sub1.Close()
	sub2 := bus.Subscribe()
	defer sub2.Close()

	bus.Publish(Event{Kind: KindChunk, Payload: ChunkPayload{FileID: "f", ChunkID: 1}})

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case evt := <-sub.C():
			assert.Equal(t, KindChunk, evt.Kind)
			payload, ok := evt.Payload.(ChunkPayload)
			require.True(t, ok)
			assert.Equal(t, 1, payload.ChunkID)
		default:
			t.Fatal("expected buffered event")
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	defer sub.Close()

	// Overfill the subscriber buffer; the excess is dropped.
	for i := 0; i < subscriberBuffer*2; i++ {
		bus.Publish(Event{Kind: KindChunk, Payload: ChunkPayload{ChunkID: i}})
	}

	received := 0
	for {
		select {
		case <-sub.C():
			received++
			continue
		default:
		}
		break
	}
	assert.Equal(t, subscriberBuffer, received)
}

func TestCloseUnsubscribes(t *testing.T) {
	bus := NewBus()

	sub := bus.Subscribe()
	assert.Equal(t, 1, bus.SubscriberCount())

	sub.Close()
	assert.Equal(t, 0, bus.SubscriberCount())

	// Closing twice is safe.
	sub.Close()

	// Publishing with no subscribers is a no-op.
	bus.Publish(Event{Kind: KindError, Payload: ErrorPayload{Error: "gone"}})

	_, open := <-sub.C()
	assert.False(t, open)
}
