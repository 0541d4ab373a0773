package playback

import (
	"context"
	"fmt"

	"macroplay-go/core/event"
	"macroplay-go/domain/macro"
)

// searchOp performs one complete search attempt for an OCR-bearing
// action. found=false with a nil error means the attempt ran to
// completion and the target was not on screen; any error is an
// infrastructure failure or a control-flow signal and bypasses the
// fail policy entirely.
type searchOp func(ctx context.Context) (found bool, err error)

// guard runs op under the action's fail policy.
//
// Retry makes RetryCount additional attempts, pausing RetryDelay before
// each, then aborts. Abort raises TextNotFoundError on the first miss.
// Fallback executes the policy's nested action list through the regular
// interpreter, then applies OnFallbackDone: continue with the next
// action, stop the macro, or restart it from the top. Stop and restart
// signals from inside a fallback propagate unconditionally.
func (p *Player) guard(ctx context.Context, idx int, a *macro.Action, op searchOp) error {
	policy := a.OnFail
	if policy == nil {
		policy = macro.AbortPolicy()
	}

	attempts := 1
	if policy.Kind == macro.FailRetry {
		attempts = policy.RetryCount + 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && policy.RetryDelay > 0 {
			if err := p.waitActive(ctx, policy.RetryDelay); err != nil {
				return err
			}
		}

		found, err := op(ctx)
		if err != nil {
			return err
		}
		if found {
			return nil
		}

		p.publish(event.NewActionFailed(p.macroName(), idx,
			fmt.Sprintf("text %q not found (attempt %d/%d)", a.Text, attempt, attempts)))
	}

	notFound := &TextNotFoundError{Index: idx, Text: a.Text, Attempts: attempts}

	if policy.Kind != macro.FailFallback {
		return notFound
	}

	p.logger.Info("running fallback actions",
		"macro", p.macroName(), "action", idx, "steps", len(policy.Fallback))
	if err := p.executeList(ctx, "fallback", policy.Fallback, 0); err != nil {
		return err
	}

	switch policy.OnFallbackDone {
	case macro.OutcomeStopMacro:
		return errStopMacro
	case macro.OutcomeRestartMacro:
		return errRestartMacro
	default:
		return nil
	}
}
