package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards events of type T to ch without blocking.
// Used by server-sent event streams.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full (non-blocking)
		}
	})
}

// SubscribeAll forwards every session event to ch. The returned function
// removes all subscriptions.
func SubscribeAll(bus *Bus, ch chan<- any) func() {
	unsubs := []func(){
		SubscribeToChannel[SessionLinkedEvent](bus, ch),
		SubscribeToChannel[SetupFailedEvent](bus, ch),
		SubscribeToChannel[StreamingStartedEvent](bus, ch),
		SubscribeToChannel[FrameConvertedEvent](bus, ch),
		SubscribeToChannel[FrameFailedEvent](bus, ch),
		SubscribeToChannel[SessionClosedEvent](bus, ch),
		SubscribeToChannel[DeviceRemovedEvent](bus, ch),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
