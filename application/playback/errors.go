package playback

import (
	"errors"
	"fmt"
)

// Control-flow signals raised by fallback outcomes. They travel as errors
// so that nested interpreters and retry loops unwind unconditionally, and
// are translated into a stop reason at the top of the run loop.
var (
	errStopMacro    = errors.New("stop macro requested")
	errRestartMacro = errors.New("restart macro requested")
)

// TextNotFoundError reports an OCR target that was never found after the
// action's fail policy was exhausted.
type TextNotFoundError struct {
	// Index is the position of the failing action in its list
	Index int
	// Text is the OCR target
	Text string
	// Attempts is the total number of search attempts made
	Attempts int
}

func (e *TextNotFoundError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("text %q not found after %d attempts", e.Text, e.Attempts)
	}
	return fmt.Sprintf("text %q not found", e.Text)
}

// TerminationError is the structured reason playback ended abnormally:
// which action failed, where it sat in the sequence, and why. The UI can
// highlight the failing step from this instead of parsing a message.
type TerminationError struct {
	// ActionIndex is the top-level index of the failing action
	ActionIndex int
	// Detail is a human-readable rendering of the failing action
	Detail string
	// Err is the underlying failure
	Err error
}

func (e *TerminationError) Error() string {
	return fmt.Sprintf("action %d (%s): %v", e.ActionIndex, e.Detail, e.Err)
}

func (e *TerminationError) Unwrap() error {
	return e.Err
}
