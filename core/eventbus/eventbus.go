// Package eventbus provides the event bus for publishing and subscribing to events.
package eventbus

import (
	"macroplay-go/core/event"
)

// EventBus is the interface for the event bus.
type EventBus interface {
	// Publish publishes an event to all subscribers.
	// This method is non-blocking; events are queued for async dispatch.
	Publish(e event.Event)

	// Subscribe subscribes to all events.
	// Returns a subscription ID that can be used to unsubscribe.
	Subscribe(handler EventHandler) uint64

	// SubscribeMacro subscribes to events from a specific macro run.
	// Only events implementing PlaybackEvent with a matching macro name
	// will be delivered. Returns a subscription ID.
	SubscribeMacro(macroName string, handler EventHandler) uint64

	// Unsubscribe removes a subscription by its ID.
	Unsubscribe(subscriptionID uint64)

	// Close shuts down the event bus and releases resources.
	// After Close is called, Publish will be a no-op.
	Close()
}

// EventHandler is a function that handles an event.
type EventHandler func(e event.Event)
