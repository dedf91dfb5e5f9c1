package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/entitlements/internal/domain/shared/events"
	"github.com/orris-inc/entitlements/internal/shared/goroutine"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

// DefaultChannel carries every domain event unless configured otherwise.
const DefaultChannel = "entitlements:events"

const publishTimeout = 5 * time.Second

// Envelope is the wire form of a domain event. Payload holds the event
// itself as JSON, snapshots included.
type Envelope struct {
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Version     int             `json:"version"`
	InstanceID  string          `json:"instance_id"`
	Payload     json.RawMessage `json:"payload"`
}

// RedisEventBus fans domain events out to other processes over Redis
// Pub/Sub. Register it on the in-process dispatcher with events.AllEvents and
// it forwards whatever the engine publishes.
type RedisEventBus struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     logger.Interface
}

func NewRedisEventBus(client *redis.Client, channel string, logger logger.Interface) *RedisEventBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisEventBus{
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
		logger:     logger,
	}
}

// InstanceID identifies this process in published envelopes.
func (b *RedisEventBus) InstanceID() string {
	return b.instanceID
}

// Handle implements events.EventHandler.
func (b *RedisEventBus) Handle(event events.DomainEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return b.Publish(ctx, event)
}

func (b *RedisEventBus) CanHandle(string) bool {
	return true
}

// Publish sends one event to the channel.
func (b *RedisEventBus) Publish(ctx context.Context, event events.DomainEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.GetEventType(), err)
	}
	data, err := json.Marshal(Envelope{
		EventType:   event.GetEventType(),
		AggregateID: event.GetAggregateID(),
		OccurredAt:  event.GetOccurredAt(),
		Version:     event.GetVersion(),
		InstanceID:  b.instanceID,
		Payload:     payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Errorw("failed to publish domain event",
			"event_type", event.GetEventType(),
			"aggregate_id", event.GetAggregateID(),
			"error", err,
		)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debugw("domain event published to Redis",
		"event_type", event.GetEventType(),
		"aggregate_id", event.GetAggregateID(),
	)
	return nil
}

// Subscribe delivers envelopes from the channel until ctx is done,
// reconnecting with exponential backoff when the connection drops.
func (b *RedisEventBus) Subscribe(ctx context.Context, handler func(Envelope)) error {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		err := b.subscribe(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		b.logger.Warnw("event subscription disconnected, reconnecting",
			"channel", b.channel,
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, maxBackoff)
	}
}

func (b *RedisEventBus) subscribe(ctx context.Context, handler func(Envelope)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channel %s: %w", b.channel, err)
	}
	b.logger.Infow("subscribed to domain events", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			b.logger.Infow("domain event subscriber stopped", "channel", b.channel, "reason", ctx.Err())
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				b.logger.Warnw("domain event channel closed", "channel", b.channel)
				return nil
			}

			var envelope Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				b.logger.Warnw("failed to unmarshal event envelope", "payload", msg.Payload, "error", err)
				continue
			}
			goroutine.SafeGo(b.logger, "event-handler-"+envelope.EventType, func() {
				handler(envelope)
			})
		}
	}
}
