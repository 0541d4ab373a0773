package playback

import (
	"context"
	"time"

	"macroplay-go/core/event"
	"macroplay-go/domain/macro"
)

// resolveFireTimes maps trigger offsets to absolute fire times measured
// from the hold's start. A fromStart trigger fires at its own offset; an
// afterPrevious trigger fires at the previous fire time plus its offset.
func resolveFireTimes(triggers []macro.Trigger) []time.Duration {
	times := make([]time.Duration, len(triggers))
	var prev time.Duration
	for i, tr := range triggers {
		switch tr.Anchor {
		case macro.AnchorFromStart:
			times[i] = tr.Offset
		default:
			times[i] = prev + tr.Offset
		}
		prev = times[i]
	}
	return times
}

// runTimeline holds the timeline's combo down, fires each trigger at its
// resolved time, and releases the hold after the last trigger completes.
// The hold is released exactly once on every path: normal completion,
// trigger failure, and cancellation mid-wait.
func (p *Player) runTimeline(ctx context.Context, a *macro.Action) error {
	fireTimes := resolveFireTimes(a.Triggers)

	h, err := pressHold(p.injector, a.Hold)
	if err != nil {
		return err
	}
	defer h.release()

	sess := p.sess
	sess.push("trigger")
	defer sess.pop()
	sess.extendProgress(len(a.Triggers))

	// elapsed tracks active time since the hold began. Trigger execution
	// time counts toward it; paused time does not, including pauses taken
	// while a trigger's own action was underway.
	var elapsed time.Duration
	for i := range a.Triggers {
		if wait := fireTimes[i] - elapsed; wait > 0 {
			if err := p.waitActive(ctx, wait); err != nil {
				return err
			}
			elapsed = fireTimes[i]
		}

		sess.setIndex(i)
		mark := p.pause.pausedTotal()
		started := time.Now()
		if err := p.executeAction(ctx, i, &a.Triggers[i].Action); err != nil {
			return err
		}
		elapsed += p.pause.active(started, mark)

		done, total := sess.completeItem()
		p.publish(event.NewProgress(p.macroName(), done, total))
	}

	return h.release()
}
