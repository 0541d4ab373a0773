package event

import (
	"image"

	"macroplay-go/core/state"
)

// PlaybackStarted is published when a macro run begins.
type PlaybackStarted struct {
	basePlaybackEvent
	ActionCount int
}

func NewPlaybackStarted(macroName string, actionCount int) *PlaybackStarted {
	return &PlaybackStarted{
		basePlaybackEvent: basePlaybackEvent{macroName: macroName},
		ActionCount:       actionCount,
	}
}

func (e *PlaybackStarted) EventName() string {
	return "PlaybackStarted"
}

// StopReason indicates why playback stopped.
type StopReason int

const (
	// StopReasonNormal indicates the macro completed normally.
	StopReasonNormal StopReason = iota
	// StopReasonManual indicates playback was stopped by the user.
	StopReasonManual
	// StopReasonError indicates playback stopped due to an error.
	StopReasonError
	// StopReasonFallback indicates a fallback branch requested the stop.
	StopReasonFallback
	// StopReasonStopWord indicates the configured stop word was seen on screen.
	StopReasonStopWord
)

func (r StopReason) String() string {
	switch r {
	case StopReasonNormal:
		return "Normal"
	case StopReasonManual:
		return "Manual"
	case StopReasonError:
		return "Error"
	case StopReasonFallback:
		return "Fallback"
	case StopReasonStopWord:
		return "StopWord"
	default:
		return "Unknown"
	}
}

// PlaybackStopped is published when a macro run terminates.
type PlaybackStopped struct {
	basePlaybackEvent
	Reason StopReason
	Error  error // Non-nil if Reason is StopReasonError
}

func NewPlaybackStopped(macroName string, reason StopReason, err error) *PlaybackStopped {
	return &PlaybackStopped{
		basePlaybackEvent: basePlaybackEvent{macroName: macroName},
		Reason:            reason,
		Error:             err,
	}
}

func (e *PlaybackStopped) EventName() string {
	return "PlaybackStopped"
}

// StateChanged is published when the playback state machine transitions.
type StateChanged struct {
	basePlaybackEvent
	OldState state.PlaybackState
	NewState state.PlaybackState
}

func NewStateChanged(macroName string, oldState, newState state.PlaybackState) *StateChanged {
	return &StateChanged{
		basePlaybackEvent: basePlaybackEvent{macroName: macroName},
		OldState:          oldState,
		NewState:          newState,
	}
}

func (e *StateChanged) EventName() string {
	return "StateChanged"
}

// ActionStarted is published when the engine dispatches an action.
type ActionStarted struct {
	basePlaybackEvent
	Index  int
	Detail string
}

func NewActionStarted(macroName string, index int, detail string) *ActionStarted {
	return &ActionStarted{
		basePlaybackEvent: basePlaybackEvent{macroName: macroName},
		Index:             index,
		Detail:            detail,
	}
}

func (e *ActionStarted) EventName() string {
	return "ActionStarted"
}

// ActionFailed is published when an action misses its target, before any
// fail policy runs. Terminal failures additionally surface in
// PlaybackStopped.
type ActionFailed struct {
	basePlaybackEvent
	Index   int
	Message string
}

func NewActionFailed(macroName string, index int, message string) *ActionFailed {
	return &ActionFailed{
		basePlaybackEvent: basePlaybackEvent{macroName: macroName},
		Index:             index,
		Message:           message,
	}
}

func (e *ActionFailed) EventName() string {
	return "ActionFailed"
}

// TextMatched is published when an OCR search finds its target.
type TextMatched struct {
	basePlaybackEvent
	Index  int
	Text   string
	Bounds image.Rectangle
}

func NewTextMatched(macroName string, index int, text string, bounds image.Rectangle) *TextMatched {
	return &TextMatched{
		basePlaybackEvent: basePlaybackEvent{macroName: macroName},
		Index:             index,
		Text:              text,
		Bounds:            bounds,
	}
}

func (e *TextMatched) EventName() string {
	return "TextMatched"
}

// CycleStarted is published at the start of each top-level pass through
// the action sequence. Remaining is -1 when looping infinitely.
type CycleStarted struct {
	basePlaybackEvent
	Cycle     int
	Remaining int
}

func NewCycleStarted(macroName string, cycle, remaining int) *CycleStarted {
	return &CycleStarted{
		basePlaybackEvent: basePlaybackEvent{macroName: macroName},
		Cycle:             cycle,
		Remaining:         remaining,
	}
}

func (e *CycleStarted) EventName() string {
	return "CycleStarted"
}

// Progress is published as actions complete.
type Progress struct {
	basePlaybackEvent
	Done  int
	Total int
}

func NewProgress(macroName string, done, total int) *Progress {
	return &Progress{
		basePlaybackEvent: basePlaybackEvent{macroName: macroName},
		Done:              done,
		Total:             total,
	}
}

func (e *Progress) EventName() string {
	return "Progress"
}
