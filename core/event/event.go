// Package event defines all events published by the playback engine.
// Events represent progress and status changes and are consumed by
// subscribers such as a CLI reporter or a GUI overlay.
package event

// Event is the base interface for all events.
type Event interface {
	// EventName returns the name of the event for logging/debugging
	EventName() string
}

// PlaybackEvent is an event that originates from a specific macro run.
type PlaybackEvent interface {
	Event
	// MacroName returns the name of the macro being played
	MacroName() string
}

// basePlaybackEvent provides common implementation for playback events.
type basePlaybackEvent struct {
	macroName string
}

func (e *basePlaybackEvent) MacroName() string {
	return e.macroName
}
