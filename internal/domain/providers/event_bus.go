package providers

import (
	"context"

	"github.com/medigrid/backend/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.SaveEvent) error

	// Subscribe returns a channel of events that is closed when ctx ends or
	// the bus is closed.
	Subscribe(ctx context.Context, channel string) (<-chan *entities.SaveEvent, error)

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventChannelPrescriptionSaved carries one event per committed save.
const EventChannelPrescriptionSaved = "prescriptions:saved"
