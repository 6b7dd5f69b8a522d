package events

import "time"

// DomainEvent is implemented by every domain event in the system. It exposes
// the minimal metadata the event infrastructure needs for routing and
// temporal ordering; the concrete type carries the payload.
type DomainEvent interface {
	// EventType identifies the category of this event for routing and handling.
	EventType() EventType

	// OccurredAt records when this event was created, enabling temporal
	// tracking and debugging of event flows.
	OccurredAt() time.Time
}

// EventEnvelope wraps a domain event with transport-level metadata as it
// flows through an event bus.
type EventEnvelope struct {
	// Type identifies the category of this event for routing and handling.
	Type EventType

	// Key enables consistent event routing, typically containing a business
	// identifier like a SessionID that events can be grouped by.
	Key string

	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string

	// Timestamp records when this event was created.
	Timestamp time.Time

	// Payload contains the actual event data. The concrete type depends on
	// the EventType.
	Payload any
}
