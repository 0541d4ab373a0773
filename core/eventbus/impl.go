package eventbus

import (
	"sync"
	"sync/atomic"

	"macroplay-go/core/event"
)

// subscription represents a single event subscription.
type subscription struct {
	id        uint64
	handler   EventHandler
	macroName string // Empty string means subscribe to all events
}

// channelEventBus is a channel-based implementation of EventBus.
type channelEventBus struct {
	eventChan     chan event.Event
	subscriptions map[uint64]*subscription
	mu            sync.RWMutex
	closed        atomic.Bool
	wg            sync.WaitGroup
	nextID        atomic.Uint64
}

// New creates a new EventBus with the specified buffer size.
func New(bufferSize int) EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}

	bus := &channelEventBus{
		eventChan:     make(chan event.Event, bufferSize),
		subscriptions: make(map[uint64]*subscription),
	}

	bus.wg.Add(1)
	go bus.dispatch()

	return bus
}

// Publish publishes an event to all subscribers.
func (b *channelEventBus) Publish(e event.Event) {
	if b.closed.Load() {
		return
	}

	// Non-blocking send; a full buffer drops the event rather than
	// stalling the playback loop.
	select {
	case b.eventChan <- e:
	default:
	}
}

// Subscribe subscribes to all events.
func (b *channelEventBus) Subscribe(handler EventHandler) uint64 {
	return b.subscribe("", handler)
}

// SubscribeMacro subscribes to events from a specific macro run.
func (b *channelEventBus) SubscribeMacro(macroName string, handler EventHandler) uint64 {
	return b.subscribe(macroName, handler)
}

func (b *channelEventBus) subscribe(macroName string, handler EventHandler) uint64 {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subscriptions[id] = &subscription{
		id:        id,
		handler:   handler,
		macroName: macroName,
	}
	b.mu.Unlock()

	return id
}

// Unsubscribe removes a subscription by its ID.
func (b *channelEventBus) Unsubscribe(subscriptionID uint64) {
	b.mu.Lock()
	delete(b.subscriptions, subscriptionID)
	b.mu.Unlock()
}

// Close shuts down the event bus.
func (b *channelEventBus) Close() {
	if b.closed.Swap(true) {
		return // Already closed
	}

	close(b.eventChan)
	b.wg.Wait()
}

// dispatch is the main event dispatch loop.
func (b *channelEventBus) dispatch() {
	defer b.wg.Done()

	for e := range b.eventChan {
		b.deliverEvent(e)
	}
}

// deliverEvent delivers an event to all matching subscribers.
func (b *channelEventBus) deliverEvent(e event.Event) {
	b.mu.RLock()
	// Copy subscriptions to avoid holding lock during handler execution
	subs := make([]*subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	// Get the macro name if this is a playback event
	var eventMacro string
	if pe, ok := e.(event.PlaybackEvent); ok {
		eventMacro = pe.MacroName()
	}

	for _, sub := range subs {
		// Filter by macro name if subscription is macro-specific
		if sub.macroName != "" {
			if eventMacro == "" || sub.macroName != eventMacro {
				continue
			}
		}

		// Call handler (catch panics to prevent one bad handler from affecting others)
		func() {
			defer func() {
				_ = recover()
			}()
			sub.handler(e)
		}()
	}
}
