package macro

import (
	"fmt"
	"image"
	"io/fs"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"macroplay-go/domain/region"
)

// yamlMacro is the YAML structure for macro definitions.
type yamlMacro struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	BaseArea    *yamlRect    `yaml:"baseArea,omitempty"`
	Repeat      *yamlRepeat  `yaml:"repeat,omitempty"`
	MoveMouse   *bool        `yaml:"moveMouse,omitempty"`
	Actions     []yamlAction `yaml:"actions"`
}

type yamlRepeat struct {
	Enabled bool      `yaml:"enabled"`
	Count   int       `yaml:"count,omitempty"`
	Delay   yamlDelay `yaml:"delay,omitempty"`
}

type yamlAction struct {
	Type     string        `yaml:"type"`
	Keys     []string      `yaml:"keys,omitempty"`
	Button   string        `yaml:"button,omitempty"`
	Repeat   int           `yaml:"repeat,omitempty"`
	Delay    *yamlDelay    `yaml:"delay,omitempty"`
	Hold     *yamlCombo    `yaml:"hold,omitempty"`
	Triggers []yamlTrigger `yaml:"triggers,omitempty"`
	Region   *yamlRegion   `yaml:"region,omitempty"`
	Click    bool          `yaml:"click,omitempty"`
	Text     string        `yaml:"text,omitempty"`
	Poll     duration      `yaml:"poll,omitempty"`
	Timeout  duration      `yaml:"timeout,omitempty"`
	OnFail   *yamlPolicy   `yaml:"onFail,omitempty"`
}

type yamlCombo struct {
	Keys   []string `yaml:"keys,omitempty"`
	Button string   `yaml:"button,omitempty"`
}

type yamlTrigger struct {
	Offset duration   `yaml:"offset"`
	Anchor string     `yaml:"anchor,omitempty"`
	Action yamlAction `yaml:"action"`
}

type yamlPolicy struct {
	Kind    string       `yaml:"kind"`
	Count   int          `yaml:"count,omitempty"`
	Delay   duration     `yaml:"delay,omitempty"`
	Actions []yamlAction `yaml:"actions,omitempty"`
	OnDone  string       `yaml:"onDone,omitempty"`
}

type yamlDelay struct {
	Min duration `yaml:"min"`
	Max duration `yaml:"max,omitempty"`
}

type yamlRect struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type yamlRegion struct {
	ID   string       `yaml:"id,omitempty"`
	Rect *yamlRect    `yaml:"rect,omitempty"`
	Rel  *yamlRelRect `yaml:"rel,omitempty"`
}

type yamlRelRect struct {
	X1 float64 `yaml:"x1"`
	Y1 float64 `yaml:"y1"`
	X2 float64 `yaml:"x2"`
	Y2 float64 `yaml:"y2"`
}

// duration is a wrapper for time.Duration that handles YAML parsing.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// Loader handles loading macro definitions from various sources.
type Loader struct {
	registry *Registry
}

// NewLoader creates a new macro loader that populates the given registry.
func NewLoader(registry *Registry) *Loader {
	return &Loader{registry: registry}
}

// LoadFromFS loads macro definitions from an embedded or real filesystem.
// It expects YAML files in a "macros" subdirectory.
func (l *Loader) LoadFromFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, "macros")
	if err != nil {
		return fmt.Errorf("failed to read macros directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		if err := l.loadFile(fsys, "macros/"+entry.Name()); err != nil {
			return err
		}
	}
	return nil
}

// loadFile loads a single macro definition file.
func (l *Loader) loadFile(fsys fs.FS, path string) error {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("failed to read macro file %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return fmt.Errorf("macro file %s: %w", path, err)
	}

	l.registry.Register(m)
	return nil
}

// Parse decodes and validates a single YAML macro definition.
func Parse(data []byte) (*Macro, error) {
	var ym yamlMacro
	if err := yaml.Unmarshal(data, &ym); err != nil {
		return nil, fmt.Errorf("failed to parse macro: %w", err)
	}

	m, err := convertYAMLMacro(&ym)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func convertYAMLMacro(ym *yamlMacro) (*Macro, error) {
	m := &Macro{
		Name:        ym.Name,
		Description: ym.Description,
		// Cursor motion is on unless the definition disables it.
		MoveMouse: ym.MoveMouse == nil || *ym.MoveMouse,
	}

	if ym.BaseArea != nil {
		r := ym.BaseArea.toRect()
		m.BaseArea = &r
	}

	if ym.Repeat != nil {
		m.Repeat = RepeatSettings{
			Enabled: ym.Repeat.Enabled,
			Count:   ym.Repeat.Count,
			Delay:   ym.Repeat.Delay.toDelay(),
		}
	}

	actions, err := convertYAMLActions(ym.Actions)
	if err != nil {
		return nil, err
	}
	m.Actions = actions
	return m, nil
}

func convertYAMLActions(yas []yamlAction) ([]Action, error) {
	actions := make([]Action, 0, len(yas))
	for i := range yas {
		a, err := convertYAMLAction(&yas[i])
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func convertYAMLAction(ya *yamlAction) (Action, error) {
	a := Action{
		Kind:    ActionKind(ya.Type),
		Combo:   Combo{Keys: ya.Keys, MouseButton: MouseButton(ya.Button)},
		Repeat:  ya.Repeat,
		Click:   ya.Click,
		Text:    ya.Text,
		Poll:    time.Duration(ya.Poll),
		Timeout: time.Duration(ya.Timeout),
	}

	if ya.Delay != nil {
		a.Delay = ya.Delay.toDelay()
	}

	if ya.Hold != nil {
		a.Hold = Combo{Keys: ya.Hold.Keys, MouseButton: MouseButton(ya.Hold.Button)}
	}

	for i := range ya.Triggers {
		yt := &ya.Triggers[i]
		anchor, err := parseAnchor(yt.Anchor)
		if err != nil {
			return Action{}, fmt.Errorf("trigger %d: %w", i, err)
		}
		sub, err := convertYAMLAction(&yt.Action)
		if err != nil {
			return Action{}, fmt.Errorf("trigger %d: %w", i, err)
		}
		a.Triggers = append(a.Triggers, Trigger{
			Offset: time.Duration(yt.Offset),
			Anchor: anchor,
			Action: sub,
		})
	}

	if ya.Region != nil {
		r, err := ya.Region.toRegion()
		if err != nil {
			return Action{}, err
		}
		a.Region = r
	}

	if ya.OnFail != nil {
		p, err := convertYAMLPolicy(ya.OnFail)
		if err != nil {
			return Action{}, err
		}
		a.OnFail = p
	}

	return a, nil
}

func convertYAMLPolicy(yp *yamlPolicy) (*FailPolicy, error) {
	switch yp.Kind {
	case "retry":
		return &FailPolicy{
			Kind:       FailRetry,
			RetryCount: yp.Count,
			RetryDelay: time.Duration(yp.Delay),
		}, nil
	case "abort", "":
		return &FailPolicy{Kind: FailAbort}, nil
	case "fallback":
		actions, err := convertYAMLActions(yp.Actions)
		if err != nil {
			return nil, fmt.Errorf("fallback: %w", err)
		}
		outcome, err := parseOutcome(yp.OnDone)
		if err != nil {
			return nil, err
		}
		return &FailPolicy{
			Kind:           FailFallback,
			Fallback:       actions,
			OnFallbackDone: outcome,
		}, nil
	default:
		return nil, fmt.Errorf("unknown fail policy kind %q", yp.Kind)
	}
}

func parseAnchor(s string) (TriggerAnchor, error) {
	switch s {
	case "fromStart":
		return AnchorFromStart, nil
	case "afterPrevious", "":
		return AnchorAfterPrevious, nil
	default:
		return 0, fmt.Errorf("unknown trigger anchor %q", s)
	}
}

func parseOutcome(s string) (FallbackOutcome, error) {
	switch s {
	case "continue", "":
		return OutcomeContinue, nil
	case "stop":
		return OutcomeStopMacro, nil
	case "restart":
		return OutcomeRestartMacro, nil
	default:
		return 0, fmt.Errorf("unknown fallback outcome %q", s)
	}
}

func (yr *yamlRect) toRect() image.Rectangle {
	return image.Rect(yr.X, yr.Y, yr.X+yr.Width, yr.Y+yr.Height)
}

func (yr *yamlRegion) toRegion() (region.Region, error) {
	switch {
	case yr.Rect != nil && yr.Rel != nil:
		return region.Region{}, fmt.Errorf("region %q: rect and rel are mutually exclusive", yr.ID)
	case yr.Rect != nil:
		return region.Abs(yr.ID, yr.Rect.toRect()), nil
	case yr.Rel != nil:
		return region.Rel(yr.ID, region.RelBounds{
			X1: yr.Rel.X1, Y1: yr.Rel.Y1, X2: yr.Rel.X2, Y2: yr.Rel.Y2,
		}), nil
	default:
		return region.Region{}, fmt.Errorf("region %q: neither rect nor rel set", yr.ID)
	}
}

func (yd yamlDelay) toDelay() Delay {
	min := time.Duration(yd.Min)
	max := time.Duration(yd.Max)
	if max < min {
		max = min
	}
	return Delay{Min: min, Max: max}
}
