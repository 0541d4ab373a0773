package macro

import (
	"fmt"
	"time"
)

// Validate checks the macro for structural problems that would otherwise
// surface mid-playback: unknown action kinds, empty input combos, OCR
// actions without target text, and trigger offsets that cannot produce a
// non-decreasing fire order. Broken configuration fails here, before any
// input is injected.
func (m *Macro) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("macro has no name")
	}
	if len(m.Actions) == 0 {
		return fmt.Errorf("macro %q has no actions", m.Name)
	}
	if m.Repeat.Count < 0 {
		return fmt.Errorf("macro %q: repeat count (%d) cannot be negative", m.Name, m.Repeat.Count)
	}
	return validateActions(m.Name, m.Actions, 0)
}

// maxFallbackDepth bounds nested fallback lists. The design allows
// arbitrary nesting, so the limit is defensive only.
const maxFallbackDepth = 16

func validateActions(macroName string, actions []Action, depth int) error {
	if depth > maxFallbackDepth {
		return fmt.Errorf("macro %q: fallback nesting exceeds %d levels", macroName, maxFallbackDepth)
	}
	for i := range actions {
		if err := validateAction(macroName, &actions[i], depth); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

func validateAction(macroName string, a *Action, depth int) error {
	switch a.Kind {
	case ActionPress:
		if a.Combo.IsEmpty() {
			return fmt.Errorf("press action has no input combo")
		}

	case ActionTimeline:
		if a.Hold.IsEmpty() {
			return fmt.Errorf("timeline action has no hold combo")
		}
		if err := validateTriggers(macroName, a.Triggers, depth); err != nil {
			return err
		}

	case ActionArea:
		// Region emptiness is only detectable at resolve time for
		// relative regions; nothing to check statically.

	case ActionTextInArea, ActionWaitForText:
		if a.Text == "" {
			return fmt.Errorf("%s action has no target text", a.Kind)
		}
		if a.Kind == ActionWaitForText && a.Poll < 0 {
			return fmt.Errorf("waitForText poll interval (%v) cannot be negative", a.Poll)
		}
		if err := validatePolicy(macroName, a.OnFail, depth); err != nil {
			return err
		}

	case ActionWait:
		if a.Delay.Min < 0 || a.Delay.Max < 0 {
			return fmt.Errorf("wait action has a negative duration")
		}

	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}

// validateTriggers rejects trigger sequences whose resolved fire times
// would decrease. Triggers are supplied pre-ordered by intended fire
// sequence; a fromStart offset earlier than the previous trigger's fire
// time is a configuration error, not something to reorder silently.
func validateTriggers(macroName string, triggers []Trigger, depth int) error {
	var prev time.Duration
	for i, tr := range triggers {
		if tr.Offset < 0 {
			return fmt.Errorf("trigger %d: offset (%v) cannot be negative", i, tr.Offset)
		}
		var fireAt time.Duration
		switch tr.Anchor {
		case AnchorFromStart:
			fireAt = tr.Offset
		case AnchorAfterPrevious:
			fireAt = prev + tr.Offset
		default:
			return fmt.Errorf("trigger %d: unknown anchor %v", i, tr.Anchor)
		}
		if fireAt < prev {
			return fmt.Errorf("trigger %d: fire time %v precedes previous trigger at %v", i, fireAt, prev)
		}
		prev = fireAt

		if tr.Action.Kind == ActionTimeline {
			return fmt.Errorf("trigger %d: timeline actions cannot nest", i)
		}
		if err := validateAction(macroName, &tr.Action, depth); err != nil {
			return fmt.Errorf("trigger %d: %w", i, err)
		}
	}
	return nil
}

func validatePolicy(macroName string, p *FailPolicy, depth int) error {
	if p == nil {
		return nil
	}
	switch p.Kind {
	case FailRetry:
		if p.RetryCount < 1 {
			return fmt.Errorf("retry policy count (%d) must be at least 1", p.RetryCount)
		}
		if p.RetryDelay < 0 {
			return fmt.Errorf("retry policy delay (%v) cannot be negative", p.RetryDelay)
		}
	case FailAbort:
		// nothing to check
	case FailFallback:
		if len(p.Fallback) == 0 {
			return fmt.Errorf("fallback policy has no actions")
		}
		if err := validateActions(macroName, p.Fallback, depth+1); err != nil {
			return fmt.Errorf("fallback: %w", err)
		}
	default:
		return fmt.Errorf("unknown fail policy kind %v", p.Kind)
	}
	return nil
}
