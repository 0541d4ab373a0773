package macro

import (
	"sort"
	"strings"
)

// MouseButton names a physical mouse button.
type MouseButton string

const (
	MouseLeft   MouseButton = "left"
	MouseMiddle MouseButton = "middle"
	MouseRight  MouseButton = "right"
)

// Combo is a key/mouse input: a set of key names, optionally with a mouse
// button. When MouseButton is set, Keys carries only modifiers to hold
// around the click.
type Combo struct {
	// Keys are key names (e.g. "Ctrl", "Shift", "F5", "e")
	Keys []string

	// MouseButton is set for mouse combos
	MouseButton MouseButton
}

// KeyCombo creates a keyboard combo.
func KeyCombo(keys ...string) Combo {
	return Combo{Keys: keys}
}

// MouseCombo creates a mouse combo with optional modifier keys.
func MouseCombo(button MouseButton, modifiers ...string) Combo {
	return Combo{Keys: modifiers, MouseButton: button}
}

// IsMouse returns true if the combo clicks a mouse button.
func (c Combo) IsMouse() bool {
	return c.MouseButton != ""
}

// IsEmpty returns true if the combo has no input at all.
func (c Combo) IsEmpty() bool {
	return c.MouseButton == "" && len(c.Keys) == 0
}

// String renders the combo for logs and events, e.g. "Ctrl+Shift+F" or
// "Shift+click(left)".
func (c Combo) String() string {
	parts := append([]string(nil), c.Keys...)
	if c.MouseButton != "" {
		parts = append(parts, "click("+string(c.MouseButton)+")")
	}
	if len(parts) == 0 {
		return "<none>"
	}
	return strings.Join(parts, "+")
}

// modifier press order: Ctrl, Alt, Shift, Meta before any normal key.
var modifierOrder = map[string]int{
	"Ctrl":  0,
	"Alt":   1,
	"Shift": 2,
	"Meta":  3,
}

// IsModifier reports whether name is a modifier key.
func IsModifier(name string) bool {
	_, ok := modifierOrder[name]
	return ok
}

// PressOrder returns the key-down sequence: modifiers in canonical order,
// then the remaining keys in stored order. Release is the exact reverse,
// so a combo recorded as Shift+F goes down Shift,F and up F,Shift.
func (c Combo) PressOrder() []string {
	var mods, normals []string
	for _, k := range c.Keys {
		if IsModifier(k) {
			mods = append(mods, k)
		} else {
			normals = append(normals, k)
		}
	}
	sort.SliceStable(mods, func(i, j int) bool {
		return modifierOrder[mods[i]] < modifierOrder[mods[j]]
	})
	return append(mods, normals...)
}

// Modifiers returns the combo's modifier keys in canonical press order.
func (c Combo) Modifiers() []string {
	var mods []string
	for _, k := range c.PressOrder() {
		if IsModifier(k) {
			mods = append(mods, k)
		}
	}
	return mods
}
