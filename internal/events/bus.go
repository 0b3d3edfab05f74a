package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(FrameConvertedEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event dispatches on the static type, so switch to it
	switch e := ev.(type) {
	case SessionLinkedEvent:
		event.Publish(b.dispatcher, e)
	case SetupFailedEvent:
		event.Publish(b.dispatcher, e)
	case StreamingStartedEvent:
		event.Publish(b.dispatcher, e)
	case FrameConvertedEvent:
		event.Publish(b.dispatcher, e)
	case FrameFailedEvent:
		event.Publish(b.dispatcher, e)
	case SessionClosedEvent:
		event.Publish(b.dispatcher, e)
	case SessionMetricsEvent:
		event.Publish(b.dispatcher, e)
	case DeviceRemovedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type determines which events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e FrameFailedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(SessionLinkedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SetupFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamingStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameConvertedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionClosedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionMetricsEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceRemovedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}
