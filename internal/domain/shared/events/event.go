// Package events carries domain events from the services that raise them to
// in-process handlers.
package events

import "time"

// DomainEvent is implemented by every event the domain raises. Version is the
// payload schema version.
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetOccurredAt() time.Time
	GetVersion() int
}

// BaseEvent is embedded by concrete events.
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	OccurredAt  time.Time `json:"occurred_at"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string { return e.AggregateID }
func (e BaseEvent) GetEventType() string { return e.EventType }
func (e BaseEvent) GetOccurredAt() time.Time { return e.OccurredAt }
func (e BaseEvent) GetVersion() int { return e.Version }

// EventHandler receives events from a dispatcher. Handlers whose CanHandle
// returns false are skipped.
type EventHandler interface {
	Handle(event DomainEvent) error
	CanHandle(eventType string) bool
}

// EventPublisher is what services depend on to raise events.
type EventPublisher interface {
	Publish(event DomainEvent) error
	PublishAll(events []DomainEvent) error
}

// HandlerFunc adapts a function to EventHandler. It accepts every event type
// it is subscribed to.
type HandlerFunc func(DomainEvent) error

func (f HandlerFunc) Handle(event DomainEvent) error { return f(event) }
func (f HandlerFunc) CanHandle(string) bool { return true }

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(DomainEvent) error { return nil }
func (NopPublisher) PublishAll([]DomainEvent) error { return nil }
