// Package input provides OS-level input injection infrastructure.
package input

import (
	"fmt"
	"strings"

	"github.com/go-vgo/robotgo"
)

// Injector sends key and mouse events to the operating system.
// Calls are synchronous and side-effect-only; a failure here is an OS-level
// problem and is treated as fatal by the engine, never retried.
type Injector interface {
	// KeyDown presses and holds a named key.
	KeyDown(name string) error

	// KeyUp releases a named key.
	KeyUp(name string) error

	// MouseDown presses and holds a mouse button.
	MouseDown(button string) error

	// MouseUp releases a mouse button.
	MouseUp(button string) error

	// Click presses and releases a mouse button at the current position.
	Click(button string) error

	// MoveTo positions the cursor at absolute screen coordinates.
	MoveTo(x, y int) error

	// CursorPos returns the cursor's absolute screen coordinates.
	CursorPos() (x, y int)
}

// InjectionError wraps an OS-level injection failure.
type InjectionError struct {
	Op   string
	Name string
	Err  error
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("input injection %s(%s): %v", e.Op, e.Name, e.Err)
}

func (e *InjectionError) Unwrap() error {
	return e.Err
}

// RobotInjector implements Injector on top of robotgo.
type RobotInjector struct {
	remap map[rune]string
}

// Option configures a RobotInjector.
type Option func(*RobotInjector)

// WithLayoutRemap applies a physical-key remap table to single-character
// keys before dispatch (see RussianLayoutRemap).
func WithLayoutRemap(table map[rune]string) Option {
	return func(r *RobotInjector) {
		r.remap = table
	}
}

// NewRobotInjector creates an injector backed by robotgo.
func NewRobotInjector(opts ...Option) *RobotInjector {
	r := &RobotInjector{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// keyCodes maps canonical key names used in macro definitions to robotgo
// key tokens. Single characters pass through lowercased.
var keyCodes = map[string]string{
	"Ctrl":        "ctrl",
	"Shift":       "shift",
	"Alt":         "alt",
	"Meta":        "cmd",
	"Escape":      "esc",
	"Enter":       "enter",
	"Tab":         "tab",
	"Backspace":   "backspace",
	"Delete":      "delete",
	"Insert":      "insert",
	"Space":       "space",
	"Home":        "home",
	"End":         "end",
	"PageUp":      "pageup",
	"PageDown":    "pagedown",
	"Up":          "up",
	"Down":        "down",
	"Left":        "left",
	"Right":       "right",
	"CapsLock":    "capslock",
	"PrintScreen": "printscreen",
}

// translate resolves a canonical key name to a robotgo token, applying the
// layout remap to single characters first.
func (r *RobotInjector) translate(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return "", fmt.Errorf("empty key name")
	}

	if code, ok := keyCodes[n]; ok {
		return code, nil
	}

	// Function keys F1..F24 map to robotgo "f1".."f24".
	if len(n) >= 2 && n[0] == 'F' && isDigits(n[1:]) {
		return "f" + n[1:], nil
	}

	// Single characters: layout remap, then lowercase.
	runes := []rune(n)
	if len(runes) == 1 {
		ch := runes[0]
		if r.remap != nil {
			if us, ok := r.remap[toLowerRune(ch)]; ok {
				return us, nil
			}
		}
		return strings.ToLower(n), nil
	}

	return "", fmt.Errorf("unknown key name %q", name)
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

func toLowerRune(r rune) rune {
	return []rune(strings.ToLower(string(r)))[0]
}

// KeyDown presses and holds a named key.
func (r *RobotInjector) KeyDown(name string) error {
	code, err := r.translate(name)
	if err != nil {
		return &InjectionError{Op: "KeyDown", Name: name, Err: err}
	}
	if err := robotgo.KeyDown(code); err != nil {
		return &InjectionError{Op: "KeyDown", Name: name, Err: err}
	}
	return nil
}

// KeyUp releases a named key.
func (r *RobotInjector) KeyUp(name string) error {
	code, err := r.translate(name)
	if err != nil {
		return &InjectionError{Op: "KeyUp", Name: name, Err: err}
	}
	if err := robotgo.KeyUp(code); err != nil {
		return &InjectionError{Op: "KeyUp", Name: name, Err: err}
	}
	return nil
}

// MouseDown presses and holds a mouse button.
func (r *RobotInjector) MouseDown(button string) error {
	if err := robotgo.Toggle(normalizeButton(button), "down"); err != nil {
		return &InjectionError{Op: "MouseDown", Name: button, Err: err}
	}
	return nil
}

// MouseUp releases a mouse button.
func (r *RobotInjector) MouseUp(button string) error {
	if err := robotgo.Toggle(normalizeButton(button), "up"); err != nil {
		return &InjectionError{Op: "MouseUp", Name: button, Err: err}
	}
	return nil
}

// Click presses and releases a mouse button at the current position.
func (r *RobotInjector) Click(button string) error {
	robotgo.Click(normalizeButton(button), false)
	return nil
}

// MoveTo positions the cursor at absolute screen coordinates.
func (r *RobotInjector) MoveTo(x, y int) error {
	robotgo.Move(x, y)
	return nil
}

// CursorPos returns the cursor's absolute screen coordinates.
func (r *RobotInjector) CursorPos() (int, int) {
	return robotgo.Location()
}

func normalizeButton(button string) string {
	switch button {
	case "left", "middle", "right":
		return button
	default:
		return "left"
	}
}

// Ensure RobotInjector implements Injector
var _ Injector = (*RobotInjector)(nil)
