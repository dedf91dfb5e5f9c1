package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/entitlements/internal/domain/catalog"
	"github.com/orris-inc/entitlements/internal/domain/entitlement"
	"github.com/orris-inc/entitlements/internal/domain/shared/events"
	"github.com/orris-inc/entitlements/internal/domain/subscription"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func subscribeBus(t *testing.T, mr *miniredis.Miniredis, bus *RedisEventBus) <-chan Envelope {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	received := make(chan Envelope, 10)
	go func() {
		_ = bus.Subscribe(ctx, func(e Envelope) { received <- e })
	}()
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(bus.channel)[bus.channel] > 0
	}, 2*time.Second, 10*time.Millisecond)
	return received
}

func TestRedisEventBus_ForwardsDispatcherEvents(t *testing.T) {
	mr, client := setupTestRedis(t)
	log := logger.NewNop()

	publisher := NewRedisEventBus(client, "", log)
	listener := NewRedisEventBus(client, "", log)
	received := subscribeBus(t, mr, listener)

	dispatcher := events.NewInMemoryEventDispatcher(10, log)
	require.NoError(t, dispatcher.Subscribe(events.AllEvents, publisher))
	require.NoError(t, dispatcher.Start())
	defer dispatcher.Stop()

	sub := subscription.Snapshot{ID: 7, UUID: "sub-7", Subscriber: subscription.SubscriberRef{Type: "user", ID: "1"}}
	event := entitlement.NewModuleActivatedEvent(sub, catalog.ModuleSnapshot{ID: 3, UUID: "mod-3", Slug: "crm"}, time.Now().UTC())
	require.NoError(t, dispatcher.Publish(event))

	select {
	case envelope := <-received:
		assert.Equal(t, entitlement.EventTypeModuleActivated, envelope.EventType)
		assert.Equal(t, "sub-7", envelope.AggregateID)
		assert.Equal(t, publisher.InstanceID(), envelope.InstanceID)
		assert.NotEqual(t, listener.InstanceID(), envelope.InstanceID)

		var payload entitlement.ModuleActivatedEvent
		require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
		assert.Equal(t, "crm", payload.Module.Slug)
		assert.Equal(t, uint(7), payload.Subscription.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestRedisEventBus_SkipsMalformedMessages(t *testing.T) {
	mr, client := setupTestRedis(t)
	bus := NewRedisEventBus(client, "custom:events", logger.NewNop())
	received := subscribeBus(t, mr, bus)

	mr.Publish("custom:events", "not json")
	sub := subscription.Snapshot{ID: 1, UUID: "sub-1"}
	require.NoError(t, bus.Publish(context.Background(), subscription.NewSubscriptionDeletedEvent(sub)))

	select {
	case envelope := <-received:
		assert.Equal(t, subscription.EventTypeDeleted, envelope.EventType)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
	assert.Empty(t, received)
}

func TestRedisEventBus_PublishFailsWhenRedisIsDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	bus := NewRedisEventBus(client, "", logger.NewNop())
	mr.Close()

	err := bus.Handle(subscription.NewSubscriptionDeletedEvent(subscription.Snapshot{UUID: "x"}))
	assert.Error(t, err)
}
