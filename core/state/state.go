// Package state defines the playback state machine.
package state

import "fmt"

// PlaybackState represents the state of a macro playback run.
type PlaybackState int

const (
	// StateIdle is the initial state before playback starts.
	StateIdle PlaybackState = iota
	// StateRunning indicates actions are being dispatched.
	StateRunning
	// StateSuspended indicates playback is waiting on a timer or an OCR poll.
	StateSuspended
	// StateStopping indicates playback is shutting down and releasing held inputs.
	StateStopping
	// StateStopped indicates playback has terminated.
	StateStopped
)

// String returns the string representation of the state.
func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateSuspended:
		return "Suspended"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// validTransitions defines the allowed state transitions.
// Key is the current state, value is a list of valid target states.
var validTransitions = map[PlaybackState][]PlaybackState{
	StateIdle:      {StateRunning},
	StateRunning:   {StateSuspended, StateStopping},
	StateSuspended: {StateRunning, StateStopping},
	StateStopping:  {StateStopped},
	StateStopped:   {}, // Terminal state, no transitions allowed
}

// CanTransitionTo checks if transitioning from the current state to the target state is valid.
func (s PlaybackState) CanTransitionTo(target PlaybackState) bool {
	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}

// ValidTransitions returns the list of valid target states from the current state.
func (s PlaybackState) ValidTransitions() []PlaybackState {
	return validTransitions[s]
}

// IsTerminal returns true if the state is a terminal state (no further transitions).
func (s PlaybackState) IsTerminal() bool {
	return s == StateStopped
}

// IsActive returns true if playback is in an active state (not idle or stopped).
func (s PlaybackState) IsActive() bool {
	return s != StateIdle && s != StateStopped
}

// CanDispatch returns true if the next action may be dequeued in this state.
func (s PlaybackState) CanDispatch() bool {
	return s == StateRunning
}

// TransitionError represents an invalid state transition attempt.
type TransitionError struct {
	From   PlaybackState
	To     PlaybackState
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid state transition from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// NewTransitionError creates a new TransitionError.
func NewTransitionError(from, to PlaybackState, reason string) *TransitionError {
	return &TransitionError{From: from, To: to, Reason: reason}
}
