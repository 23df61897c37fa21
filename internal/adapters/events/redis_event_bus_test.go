package events

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medigrid/backend/internal/domain/entities"
	"github.com/medigrid/backend/internal/domain/providers"
	redisclient "github.com/medigrid/backend/internal/infrastructure/clients/redis"
)

func unreachableRedis(t *testing.T) *redisclient.Client {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return redisclient.NewClientFromRedis(client)
}

func TestRedisEventBus_PublishFailure(t *testing.T) {
	bus := NewRedisEventBus(unreachableRedis(t))
	defer bus.Close()

	err := bus.Publish(context.Background(), providers.EventChannelPrescriptionSaved, &entities.SaveEvent{SaveID: "s"})
	assert.ErrorContains(t, err, "failed to publish event")
}

func TestRedisEventBus_CloseEndsSubscriptions(t *testing.T) {
	bus := NewRedisEventBus(unreachableRedis(t))

	ch, err := bus.Subscribe(context.Background(), providers.EventChannelPrescriptionSaved)
	require.NoError(t, err)

	// Closing may report the never-established subscription connection.
	_ = bus.Close()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscriber channel was not closed")
	}

	_, err = bus.Subscribe(context.Background(), providers.EventChannelPrescriptionSaved)
	assert.Error(t, err)
}
