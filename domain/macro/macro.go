// Package macro defines the macro data model consumed by the playback engine.
package macro

import (
	"fmt"
	"image"
	"math/rand"
	"time"

	"macroplay-go/domain/region"
)

// Macro represents a recorded macro: an ordered action sequence plus
// replay settings. The definition is owned by the editor and read-only
// during playback.
type Macro struct {
	// Name is the unique identifier for this macro
	Name string

	// Description provides a human-readable explanation of what the macro does
	Description string

	// BaseArea is the stored anchor bounds for relative regions.
	// Nil when the macro uses only absolute regions.
	BaseArea *image.Rectangle

	// Actions are the ordered top-level actions
	Actions []Action

	// Repeat defines optional looping of the whole sequence
	Repeat RepeatSettings

	// MoveMouse makes the engine spend pre-input delays gliding the
	// cursor to a random point inside the current area once one has
	// been located, instead of idling in place
	MoveMouse bool
}

// RepeatSettings controls replay of the top-level action sequence.
type RepeatSettings struct {
	// Enabled turns looping on
	Enabled bool

	// Count is the number of cycles; 0 with Enabled means infinite
	Count int

	// Delay is the pause between cycles
	Delay Delay
}

// Infinite returns true if the macro loops until stopped.
func (r RepeatSettings) Infinite() bool {
	return r.Enabled && r.Count == 0
}

// ActionKind identifies the action variant.
type ActionKind string

const (
	ActionPress       ActionKind = "press"
	ActionTimeline    ActionKind = "timeline"
	ActionArea        ActionKind = "area"
	ActionTextInArea  ActionKind = "textInArea"
	ActionWait        ActionKind = "wait"
	ActionWaitForText ActionKind = "waitForText"
)

// Action is a single playback step. Kind selects the variant; only the
// fields of that variant are meaningful. The kind set is closed: the
// engine dispatches with an exhaustive switch and rejects unknown kinds.
type Action struct {
	// Kind is the action variant
	Kind ActionKind

	// Combo is the input for press actions and for clicks on found regions
	Combo Combo

	// Repeat is the number of input repetitions (press/area/textInArea)
	Repeat int

	// Delay is the pre-input pause, sampled per repetition
	Delay Delay

	// Hold is the input held for the duration of a timeline action
	Hold Combo

	// Triggers are the timed sub-actions of a timeline action
	Triggers []Trigger

	// Region is the target region (area/textInArea/waitForText)
	Region region.Region

	// Click requests a click on the resolved/found region
	Click bool

	// Text is the OCR target (textInArea/waitForText)
	Text string

	// Poll is the OCR polling interval for waitForText
	Poll time.Duration

	// Timeout bounds a waitForText action; 0 means no bound
	Timeout time.Duration

	// OnFail is the fail policy for OCR-bearing actions; nil means Abort
	OnFail *FailPolicy
}

// Repetitions returns the effective repeat count, at least 1.
func (a *Action) Repetitions() int {
	if a.Repeat < 1 {
		return 1
	}
	return a.Repeat
}

// Fallible returns true if the action can miss its OCR target and is
// therefore wrapped by the fail-handling coordinator.
func (a *Action) Fallible() bool {
	return a.Kind == ActionTextInArea || a.Kind == ActionWaitForText
}

// TriggerAnchor selects the reference point of a trigger's offset.
type TriggerAnchor int

const (
	// AnchorFromStart measures the offset from the timeline hold's start.
	AnchorFromStart TriggerAnchor = iota
	// AnchorAfterPrevious measures the offset from the previous trigger's fire time.
	AnchorAfterPrevious
)

func (a TriggerAnchor) String() string {
	switch a {
	case AnchorFromStart:
		return "fromStart"
	case AnchorAfterPrevious:
		return "afterPrevious"
	default:
		return fmt.Sprintf("Unknown(%d)", int(a))
	}
}

// Trigger is a sub-action fired at a computed time within a timeline hold.
type Trigger struct {
	// Offset is the stored delay, interpreted per Anchor
	Offset time.Duration

	// Anchor selects the offset's reference point
	Anchor TriggerAnchor

	// Action is executed at the resolved fire time
	Action Action
}

// FailPolicyKind identifies the fail policy variant.
type FailPolicyKind int

const (
	// FailRetry retries the operation a bounded number of times, then aborts.
	FailRetry FailPolicyKind = iota
	// FailAbort terminates the macro with a text-not-found error.
	FailAbort
	// FailFallback runs a nested action list, then applies OnFallbackDone.
	FailFallback
)

func (k FailPolicyKind) String() string {
	switch k {
	case FailRetry:
		return "retry"
	case FailAbort:
		return "abort"
	case FailFallback:
		return "fallback"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// FallbackOutcome is applied after a fallback action list completes.
type FallbackOutcome int

const (
	// OutcomeContinue resumes the macro at the next action.
	OutcomeContinue FallbackOutcome = iota
	// OutcomeStopMacro terminates playback.
	OutcomeStopMacro
	// OutcomeRestartMacro restarts playback from the first action.
	OutcomeRestartMacro
)

func (o FallbackOutcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeStopMacro:
		return "stopMacro"
	case OutcomeRestartMacro:
		return "restartMacro"
	default:
		return fmt.Sprintf("Unknown(%d)", int(o))
	}
}

// FailPolicy configures the response when an OCR-bearing action does not
// find its target.
type FailPolicy struct {
	// Kind is the policy variant
	Kind FailPolicyKind

	// RetryCount is the number of additional attempts for FailRetry
	RetryCount int

	// RetryDelay is the pause before each retry
	RetryDelay time.Duration

	// Fallback is the nested action list for FailFallback
	Fallback []Action

	// OnFallbackDone is applied after the fallback list completes
	OnFallbackDone FallbackOutcome
}

// AbortPolicy is the default policy for OCR-bearing actions without an
// explicit one.
func AbortPolicy() *FailPolicy {
	return &FailPolicy{Kind: FailAbort}
}

// Delay is a fixed or uniformly random pause. Min == Max means fixed.
type Delay struct {
	Min time.Duration
	Max time.Duration
}

// Fixed creates a fixed delay.
func Fixed(d time.Duration) Delay {
	return Delay{Min: d, Max: d}
}

// Between creates a uniformly random delay in [lo, hi].
func Between(lo, hi time.Duration) Delay {
	return Delay{Min: lo, Max: hi}
}

// Sample draws a concrete duration. rng may be nil for the global source.
func (d Delay) Sample(rng *rand.Rand) time.Duration {
	lo, hi := d.Min, d.Max
	if hi < lo {
		lo, hi = hi, lo
	}
	if lo < 0 {
		lo = 0
	}
	if hi <= lo {
		return lo
	}
	span := int64(hi - lo + 1)
	if rng != nil {
		return lo + time.Duration(rng.Int63n(span))
	}
	return lo + time.Duration(rand.Int63n(span))
}

// IsZero returns true if the delay never pauses.
func (d Delay) IsZero() bool {
	return d.Min <= 0 && d.Max <= 0
}
