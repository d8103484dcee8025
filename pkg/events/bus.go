// Package events provides the in-process event bus used to announce membership
// changes after they have been committed.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Event is the base interface all domain events implement.
type Event interface {
	// EventName returns a unique identifier for the event type.
	EventName() string
	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent creates a new base event with the current timestamp.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now().UTC()}
}

// Handler processes events.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is an adapter to allow ordinary functions to be used as handlers.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Publisher is what services depend on to announce events.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Recorder observes handler outcomes.
type Recorder interface {
	EventHandled(name string, err error)
}

// Bus dispatches events synchronously to handlers in registration order.
// A handler error is logged and recorded but never returned to the publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	all      []Handler
	logger   *logrus.Logger
	recorder Recorder
}

// NewBus creates an empty bus
func NewBus(logger *logrus.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// WithRecorder attaches a recorder for handler outcomes
func (b *Bus) WithRecorder(r Recorder) *Bus {
	b.recorder = r
	return b
}

// Subscribe registers a handler for a specific event name.
func (b *Bus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// SubscribeAll registers a handler that receives every event after the
// name-specific handlers.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish runs every matching handler before returning.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.EventName()])+len(b.all))
	handlers = append(handlers, b.handlers[event.EventName()]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		err := b.dispatch(ctx, h, event)
		if err != nil {
			b.logger.WithFields(logrus.Fields{
				"event": event.EventName(),
				"error": err,
			}).Error("Event handler failed")
		}
		if b.recorder != nil {
			b.recorder.EventHandled(event.EventName(), err)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, event)
}

// Nop discards every event
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(context.Context, Event) {}
