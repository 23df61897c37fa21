package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medigrid/backend/internal/domain/entities"
	"github.com/medigrid/backend/internal/domain/providers"
)

func receive(t *testing.T, ch <-chan *entities.SaveEvent) *entities.SaveEvent {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestMemoryEventBus_PublishReachesSubscribers(t *testing.T) {
	bus := NewMemoryEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := bus.Subscribe(ctx, providers.EventChannelPrescriptionSaved)
	require.NoError(t, err)
	second, err := bus.Subscribe(ctx, providers.EventChannelPrescriptionSaved)
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, "other")
	require.NoError(t, err)

	event := &entities.SaveEvent{SaveID: "save-1", SavedAt: "2026-05-01 09:00:00", Count: 2}
	require.NoError(t, bus.Publish(ctx, providers.EventChannelPrescriptionSaved, event))

	assert.Equal(t, event, receive(t, first))
	assert.Equal(t, event, receive(t, second))
	select {
	case <-other:
		t.Fatal("event leaked to another channel")
	default:
	}
}

func TestMemoryEventBus_UnsubscribesOnContextDone(t *testing.T) {
	bus := NewMemoryEventBus()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx, providers.EventChannelPrescriptionSaved)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscriber channel was not closed")
	}
}

func TestMemoryEventBus_DropsWhenSubscriberFull(t *testing.T) {
	bus := NewMemoryEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, providers.EventChannelPrescriptionSaved)
	require.NoError(t, err)

	for i := 0; i < subscriberBuffer+5; i++ {
		require.NoError(t, bus.Publish(ctx, providers.EventChannelPrescriptionSaved, &entities.SaveEvent{Count: i}))
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestMemoryEventBus_Close(t *testing.T) {
	bus := NewMemoryEventBus()
	ch, err := bus.Subscribe(context.Background(), providers.EventChannelPrescriptionSaved)
	require.NoError(t, err)

	require.NoError(t, bus.Close())

	_, ok := <-ch
	assert.False(t, ok)
	assert.Error(t, bus.Publish(context.Background(), providers.EventChannelPrescriptionSaved, &entities.SaveEvent{}))
	_, err = bus.Subscribe(context.Background(), providers.EventChannelPrescriptionSaved)
	assert.Error(t, err)
}
