// Package memory provides an in-memory implementation of the event bus.
// It offers a lightweight, non-persistent broker suitable for single-process
// deployments and tests where durability is not required.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/ahrav/liveness-gate/internal/domain/events"
)

var _ events.EventBus = (*Broker)(nil)

// Broker provides an in-memory implementation of the events.EventBus
// interface. It enables decoupled communication between components through
// event passing without any external messaging infrastructure.
type Broker struct {
	mu       sync.RWMutex
	closed   bool
	nextID   uint64
	handlers map[events.EventType][]subscription
}

// subscription ties a handler to a stable id so unsubscription removes the
// right entry regardless of how the slice has shifted since registration.
type subscription struct {
	id      uint64
	handler events.HandlerFunc
}

// NewBroker creates and initializes a new in-memory event broker.
func NewBroker() *Broker {
	return &Broker{handlers: make(map[events.EventType][]subscription)}
}

// Publish broadcasts an event to all handlers subscribed to its type,
// stopping at the first error. Handlers are copied before iteration to avoid
// holding the lock while they execute.
func (b *Broker) Publish(ctx context.Context, evt events.EventEnvelope, opts ...events.PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := events.PublishParams{}
	for _, opt := range opts {
		opt(&params)
	}
	if params.Key != "" {
		evt.Key = params.Key
	}
	if len(params.Headers) > 0 {
		evt.Headers = params.Headers
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.New("broker is closed")
	}
	subsCopy := make([]subscription, len(b.handlers[evt.Type]))
	copy(subsCopy, b.handlers[evt.Type])
	b.mu.RUnlock()

	for _, sub := range subsCopy {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sub.handler(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a handler for the given event types. Multiple handlers
// can be registered per type and will all receive published events. The
// subscription is removed when the provided context is canceled.
func (b *Broker) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("broker is closed")
	}
	b.nextID++
	id := b.nextID
	for _, et := range eventTypes {
		b.handlers[et] = append(b.handlers[et], subscription{id: id, handler: handler})
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, et := range eventTypes {
			hs := b.handlers[et]
			for i, sub := range hs {
				if sub.id == id {
					b.handlers[et] = append(hs[:i], hs[i+1:]...)
					break
				}
			}
		}
	}()

	return nil
}

// Close shuts down the broker. Subsequent publishes and subscriptions fail.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[events.EventType][]subscription)
	return nil
}
