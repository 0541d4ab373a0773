package playback

import (
	"context"
	"time"

	"macroplay-go/domain/macro"
	"macroplay-go/infrastructure/input"
)

// keyTapHold is how long a tapped combo stays down before release. Some
// applications drop key events that go down and up in the same frame.
const keyTapHold = 40 * time.Millisecond

// hold tracks pressed inputs so they can be released exactly once, in
// reverse order, on every exit path including cancellation.
type hold struct {
	injector input.Injector
	keys     []string
	button   string
	released bool
}

// pressHold presses the combo's keys in canonical order and, for mouse
// combos, presses the button after the modifiers. On any failure it
// releases whatever already went down before returning the error.
func pressHold(injector input.Injector, c macro.Combo) (*hold, error) {
	h := &hold{injector: injector}

	order := c.PressOrder()
	if c.IsMouse() {
		order = c.Modifiers()
	}
	for _, k := range order {
		if err := injector.KeyDown(k); err != nil {
			h.release()
			return nil, err
		}
		h.keys = append(h.keys, k)
	}

	if c.IsMouse() {
		if err := injector.MouseDown(string(c.MouseButton)); err != nil {
			h.release()
			return nil, err
		}
		h.button = string(c.MouseButton)
	}
	return h, nil
}

// release lifts the held inputs in exact reverse order. Idempotent: the
// second and later calls are no-ops, so it is safe to defer and also call
// explicitly to surface the error.
func (h *hold) release() error {
	if h.released {
		return nil
	}
	h.released = true

	var first error
	if h.button != "" {
		if err := h.injector.MouseUp(h.button); err != nil {
			first = err
		}
	}
	for i := len(h.keys) - 1; i >= 0; i-- {
		if err := h.injector.KeyUp(h.keys[i]); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// tapCombo performs a single press-and-release of a combo. Key combos are
// held down briefly; mouse combos click once with modifiers held around
// the click. The inputs are released even when the wait is cancelled; the
// release error wins over the cancellation so a stuck key is never silent.
func (p *Player) tapCombo(ctx context.Context, c macro.Combo) error {
	if c.IsEmpty() {
		return nil
	}

	if c.IsMouse() {
		h, err := pressHold(p.injector, macro.Combo{Keys: c.Modifiers()})
		if err != nil {
			return err
		}
		clickErr := p.injector.Click(string(c.MouseButton))
		if err := h.release(); err != nil {
			return err
		}
		return clickErr
	}

	h, err := pressHold(p.injector, c)
	if err != nil {
		return err
	}
	waitErr := p.pause.wait(ctx, keyTapHold)
	if err := h.release(); err != nil {
		return err
	}
	return waitErr
}
