package playback

import (
	"fmt"

	"macroplay-go/domain/macro"
)

// describeAction renders an action for events and logs.
func describeAction(a *macro.Action) string {
	switch a.Kind {
	case macro.ActionPress:
		if a.Repetitions() > 1 {
			return fmt.Sprintf("press %s x%d", a.Combo, a.Repetitions())
		}
		return fmt.Sprintf("press %s", a.Combo)
	case macro.ActionTimeline:
		return fmt.Sprintf("hold %s with %d triggers", a.Hold, len(a.Triggers))
	case macro.ActionArea:
		if a.Click {
			return fmt.Sprintf("click area %q", a.Region.ID)
		}
		return fmt.Sprintf("select area %q", a.Region.ID)
	case macro.ActionTextInArea:
		return fmt.Sprintf("find %q in area %q", a.Text, a.Region.ID)
	case macro.ActionWait:
		if a.Delay.Min == a.Delay.Max {
			return fmt.Sprintf("wait %s", a.Delay.Min)
		}
		return fmt.Sprintf("wait %s..%s", a.Delay.Min, a.Delay.Max)
	case macro.ActionWaitForText:
		return fmt.Sprintf("wait for %q in area %q", a.Text, a.Region.ID)
	default:
		return string(a.Kind)
	}
}
