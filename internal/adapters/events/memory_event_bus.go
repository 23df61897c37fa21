package events

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/medigrid/backend/internal/domain/entities"
	"github.com/medigrid/backend/internal/domain/providers"
)

const subscriberBuffer = 16

// MemoryEventBus delivers events to subscribers in this process only. It is
// used when Redis is not configured.
type MemoryEventBus struct {
	mu          sync.Mutex
	subscribers map[string]map[chan *entities.SaveEvent]struct{}
	closed      bool
}

// NewMemoryEventBus creates an in-process event bus.
func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{
		subscribers: make(map[string]map[chan *entities.SaveEvent]struct{}),
	}
}

var _ providers.EventBus = (*MemoryEventBus)(nil)

// Publish delivers event to every current subscriber of channel. Slow
// subscribers miss events rather than block the publisher.
func (b *MemoryEventBus) Publish(ctx context.Context, channel string, event *entities.SaveEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New("event bus is closed")
	}
	for subscriber := range b.subscribers[channel] {
		copied := *event
		select {
		case subscriber <- &copied:
		default:
			log.Warn().Str("channel", channel).Str("save_id", event.SaveID).Msg("Subscriber channel full, skipping event")
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx ends.
func (b *MemoryEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.SaveEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New("event bus is closed")
	}
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan *entities.SaveEvent]struct{})
	}
	eventChan := make(chan *entities.SaveEvent, subscriberBuffer)
	b.subscribers[channel][eventChan] = struct{}{}

	go func() {
		<-ctx.Done()
		b.remove(channel, eventChan)
	}()

	return eventChan, nil
}

func (b *MemoryEventBus) remove(channel string, eventChan chan *entities.SaveEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, ok := b.subscribers[channel]
	if !ok {
		return
	}
	if _, ok := subscribers[eventChan]; !ok {
		return
	}
	delete(subscribers, eventChan)
	close(eventChan)
	if len(subscribers) == 0 {
		delete(b.subscribers, channel)
	}
}

// Close closes every subscriber channel. Later calls to Publish and
// Subscribe fail.
func (b *MemoryEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for channel, subscribers := range b.subscribers {
		for subscriber := range subscribers {
			close(subscriber)
		}
		delete(b.subscribers, channel)
	}
	return nil
}
