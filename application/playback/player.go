// Package playback implements the macro playback engine: the interpreter
// that replays recorded action sequences against the live screen, the
// timeline scheduler for held combos with timed sub-triggers, the text
// matcher over the OCR backend, and the fail-handling coordinator.
package playback

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"macroplay-go/core/event"
	"macroplay-go/core/eventbus"
	"macroplay-go/core/state"
	"macroplay-go/domain/macro"
	"macroplay-go/domain/region"
	"macroplay-go/infrastructure/capture"
	"macroplay-go/infrastructure/input"
	"macroplay-go/infrastructure/logging"
	"macroplay-go/infrastructure/ocr"
)

// defaultPollInterval is used by waitForText actions that do not set one.
const defaultPollInterval = 300 * time.Millisecond

// StopWordConfig makes the engine watch a region for an emergency word
// and stop playback when it appears.
type StopWordConfig struct {
	// Region is scanned periodically, resolved against the base area.
	Region region.Region
	// Text is the word that triggers the stop.
	Text string
	// Interval is the scan period; defaults to one second.
	Interval time.Duration
}

// Config wires a Player to its infrastructure.
type Config struct {
	Injector input.Injector
	Capturer capture.Capturer
	OCR      ocr.Client

	// Bus receives playback events. A private bus is created when nil.
	Bus eventbus.EventBus

	// Logger defaults to the global logger.
	Logger *slog.Logger

	// Matcher tunes OCR text matching.
	Matcher MatcherConfig

	// StopWord enables the emergency stop watcher when non-nil.
	StopWord *StopWordConfig
}

// StartOptions modifies how a run begins.
type StartOptions struct {
	// StartIndex resumes the first cycle from this top-level action.
	// Later cycles and restarts always begin at index 0.
	StartIndex int
}

// Result is the final outcome of a run.
type Result struct {
	Reason event.StopReason
	// Err is the structured failure when Reason is StopReasonError.
	Err error
}

// Player replays one macro at a time. It owns the playback state machine:
// Start moves Idle to Running, Pause and Resume toggle Running and
// Suspended, Stop drains through Stopping to Stopped. A stopped player
// can be started again with a fresh run.
type Player struct {
	injector input.Injector
	capturer capture.Capturer
	matcher  *Matcher
	ocr      ocr.Client
	bus      eventbus.EventBus
	logger   *slog.Logger
	stopWord *StopWordConfig

	mu         sync.Mutex
	st         state.PlaybackState
	m          *macro.Macro
	sess       *session
	pause      *pauser
	cancel     context.CancelFunc
	stopReason event.StopReason
	done       chan struct{}
	result     Result
	waitDepth  int
	userPaused bool
	watcherWG  sync.WaitGroup
}

// NewPlayer creates a player over the given infrastructure.
func NewPlayer(cfg Config) *Player {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.L()
	}
	bus := cfg.Bus
	if bus == nil {
		bus = eventbus.New(64)
	}
	return &Player{
		injector: cfg.Injector,
		capturer: cfg.Capturer,
		matcher:  NewMatcher(cfg.Capturer, cfg.OCR, cfg.Matcher),
		ocr:      cfg.OCR,
		bus:      bus,
		logger:   logger,
		stopWord: cfg.StopWord,
		st:       state.StateIdle,
		done:     closedChannel(),
	}
}

func closedChannel() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// State returns the current playback state.
func (p *Player) State() state.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st
}

// Done is closed when the current run has fully terminated.
func (p *Player) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Result returns the outcome of the last completed run.
func (p *Player) Result() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// Start begins replaying m. It fails when a run is already active, when
// the macro does not validate, or when opts.StartIndex is out of range.
func (p *Player) Start(m *macro.Macro, opts StartOptions) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("macro %q: %w", m.Name, err)
	}
	if opts.StartIndex < 0 || opts.StartIndex >= len(m.Actions) {
		return fmt.Errorf("macro %q: start index %d out of range [0,%d)",
			m.Name, opts.StartIndex, len(m.Actions))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.st.IsActive() {
		return fmt.Errorf("macro %q: playback already active in state %s", m.Name, p.st)
	}
	// A previous run leaves the machine in Stopped; a fresh run begins
	// from Idle again.
	if p.st == state.StateStopped {
		p.st = state.StateIdle
	}

	base := p.resolveBase(m)
	ctx, cancel := context.WithCancel(context.Background())

	p.m = m
	p.sess = newSession(m, base, 1)
	p.pause = newPauser()
	p.cancel = cancel
	p.stopReason = event.StopReasonManual
	p.done = make(chan struct{})
	p.result = Result{}
	p.waitDepth = 0
	p.userPaused = false

	p.transitionLocked(state.StateRunning)
	p.bus.Publish(event.NewPlaybackStarted(m.Name, len(m.Actions)))
	p.logger.Info("playback started",
		"macro", m.Name, "actions", len(m.Actions), "startIndex", opts.StartIndex)

	go p.run(ctx, opts.StartIndex)

	if p.stopWord != nil && p.ocr != nil && p.ocr.IsAvailable() {
		p.watcherWG.Add(1)
		go p.watchStopWord(ctx, p.stopWord)
	}
	return nil
}

// Stop requests termination of the current run. It returns immediately;
// use Done to wait for the run to drain.
func (p *Player) Stop() {
	p.requestStop(event.StopReasonManual)
}

// StopWait requests termination and waits up to timeout for the run to
// drain. Returns false if the run did not terminate in time.
func (p *Player) StopWait(timeout time.Duration) bool {
	p.Stop()
	select {
	case <-p.Done():
		return true
	case <-time.After(timeout):
		return false
	}
}

// Pause suspends playback before the next wait or action boundary.
// Inputs held by an in-flight timeline stay held. The state machine may
// already report Suspended when the engine is parked on a wait; pausing
// then only arms the gate.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.st != state.StateRunning && p.st != state.StateSuspended {
		return state.NewTransitionError(p.st, state.StateSuspended, "playback is not active")
	}
	if p.userPaused {
		return state.NewTransitionError(p.st, state.StateSuspended, "already paused")
	}
	p.userPaused = true
	if p.st == state.StateRunning {
		p.transitionLocked(state.StateSuspended)
	}
	p.pause.Pause()
	p.logger.Info("playback paused", "macro", p.m.Name)
	return nil
}

// Resume lifts a user pause. Paused time does not count toward any wait
// or timeout. The state stays Suspended while an engine wait is still in
// progress.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.userPaused {
		return state.NewTransitionError(p.st, state.StateRunning, "playback is not paused")
	}
	p.userPaused = false
	p.pause.Resume()
	if p.st == state.StateSuspended && p.waitDepth == 0 {
		p.transitionLocked(state.StateRunning)
	}
	p.logger.Info("playback resumed", "macro", p.m.Name)
	return nil
}

// Paused reports whether a user pause is in effect, as opposed to the
// engine being suspended on a wait of its own.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userPaused
}

// waitActive parks playback for d and reports it on the state machine:
// the run shows Suspended for the duration of the wait and returns to
// Running when it completes, unless a user pause or stop intervenes.
func (p *Player) waitActive(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return p.pause.await(ctx)
	}
	p.beginWait()
	err := p.pause.wait(ctx, d)
	p.endWait()
	return err
}

func (p *Player) beginWait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waitDepth++
	if p.st == state.StateRunning {
		p.transitionLocked(state.StateSuspended)
	}
}

func (p *Player) endWait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waitDepth--
	if p.waitDepth == 0 && p.st == state.StateSuspended && !p.userPaused {
		p.transitionLocked(state.StateRunning)
	}
}

func (p *Player) requestStop(reason event.StopReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.st.IsActive() || p.st == state.StateStopping {
		return
	}
	p.stopReason = reason
	p.transitionLocked(state.StateStopping)
	// Unblock waits parked on the pause gate before cancelling.
	p.pause.Resume()
	p.cancel()
	p.logger.Info("playback stop requested", "macro", p.m.Name, "reason", reason)
}

// transitionLocked moves the state machine and publishes the change.
// Caller holds p.mu and must only request transitions the machine allows.
func (p *Player) transitionLocked(to state.PlaybackState) {
	from := p.st
	if !from.CanTransitionTo(to) {
		p.logger.Error("rejected state transition", "from", from, "to", to)
		return
	}
	p.st = to
	name := ""
	if p.m != nil {
		name = p.m.Name
	}
	p.bus.Publish(event.NewStateChanged(name, from, to))
}

func (p *Player) macroName() string {
	return p.m.Name
}

// currentSession returns the live session. The run goroutine swaps the
// session between cycles, so concurrent readers go through here.
func (p *Player) currentSession() *session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sess
}

func (p *Player) publish(e event.Event) {
	p.bus.Publish(e)
}

// resolveBase picks the live base area for relative regions: the macro's
// stored anchor when present, otherwise the whole virtual screen.
func (p *Player) resolveBase(m *macro.Macro) image.Rectangle {
	if m.BaseArea != nil {
		return *m.BaseArea
	}
	if p.capturer != nil {
		return p.capturer.VirtualBounds()
	}
	return image.Rectangle{}
}

// run is the top-level cycle loop. Each pass executes the action
// sequence once; repeat settings, restart signals and failures decide
// what happens between passes.
func (p *Player) run(ctx context.Context, startIndex int) {
	m := p.sess.macro
	if startIndex > 0 {
		p.sess.skipProgress(startIndex)
	}
	remaining := -1
	if m.Repeat.Enabled && !m.Repeat.Infinite() {
		remaining = m.Repeat.Count
	}

	var reason event.StopReason
	var runErr error

loop:
	for {
		p.publish(event.NewCycleStarted(m.Name, p.sess.cycle, remaining))

		err := p.executeList(ctx, "macro", m.Actions[startIndex:], startIndex)
		startIndex = 0

		switch {
		case err == nil:
			if !m.Repeat.Enabled {
				reason = event.StopReasonNormal
				break loop
			}
			if remaining > 0 {
				remaining--
				if remaining == 0 {
					reason = event.StopReasonNormal
					break loop
				}
			}
			if d := m.Repeat.Delay.Sample(p.sess.rng); d > 0 {
				if werr := p.waitActive(ctx, d); werr != nil {
					reason = p.requestedReason()
					break loop
				}
			}
			p.restartSession()

		case errors.Is(err, errRestartMacro):
			p.logger.Info("restarting macro from fallback", "macro", m.Name, "cycle", p.sess.cycle)
			p.restartSession()

		case errors.Is(err, errStopMacro):
			reason = event.StopReasonFallback
			break loop

		case errors.Is(err, context.Canceled):
			reason = p.requestedReason()
			break loop

		default:
			reason = event.StopReasonError
			runErr = &TerminationError{
				ActionIndex: p.sess.topIndex(),
				Detail:      p.failingDetail(),
				Err:         err,
			}
			break loop
		}
	}

	p.finish(reason, runErr)
}

// restartSession discards per-cycle state and begins the next pass with
// a fresh search area. Only the cycle counter carries over.
func (p *Player) restartSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	cycle := p.sess.cycle + 1
	p.sess = newSession(p.m, p.resolveBase(p.m), cycle)
}

func (p *Player) requestedReason() event.StopReason {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopReason
}

func (p *Player) failingDetail() string {
	idx := p.sess.topIndex()
	if idx >= 0 && idx < len(p.sess.macro.Actions) {
		return describeAction(&p.sess.macro.Actions[idx])
	}
	return "unknown action"
}

// finish drains the state machine to Stopped, joins the stop-word
// watcher, and publishes the outcome.
func (p *Player) finish(reason event.StopReason, err error) {
	p.mu.Lock()
	if p.st == state.StateRunning || p.st == state.StateSuspended {
		p.transitionLocked(state.StateStopping)
	}
	p.transitionLocked(state.StateStopped)
	cancel := p.cancel
	p.result = Result{Reason: reason, Err: err}
	done := p.done
	name := p.m.Name
	p.mu.Unlock()

	cancel()
	// Join the watcher so a finished run cannot overlap the next Start.
	p.watcherWG.Wait()

	p.bus.Publish(event.NewPlaybackStopped(name, reason, err))
	if err != nil {
		p.logger.Error("playback stopped", "macro", name, "reason", reason, "error", err)
	} else {
		p.logger.Info("playback stopped", "macro", name, "reason", reason)
	}
	close(done)
}

// executeList runs one action list. kind names the list for the position
// stack: "macro" for the top level, "fallback" and "trigger" for nested
// lists. baseIdx offsets reported indices when resuming mid-sequence.
func (p *Player) executeList(ctx context.Context, kind string, actions []macro.Action, baseIdx int) error {
	sess := p.sess
	sess.push(kind)
	defer sess.pop()

	// Nested lists are extra work discovered mid-run; widen the total so
	// the progress bar keeps moving inside fallbacks.
	if kind != "macro" {
		sess.extendProgress(len(actions))
	}

	for i := range actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.pause.await(ctx); err != nil {
			return err
		}

		idx := baseIdx + i
		sess.setIndex(idx)
		a := &actions[i]

		p.publish(event.NewActionStarted(p.macroName(), idx, describeAction(a)))
		p.logger.Debug("dispatching action",
			"macro", p.macroName(), "list", kind, "index", idx, "kind", a.Kind)

		if err := p.executeAction(ctx, idx, a); err != nil {
			return err
		}

		done, total := sess.completeItem()
		p.publish(event.NewProgress(p.macroName(), done, total))
	}
	return nil
}

// executeAction dispatches a single action. The kind set is closed;
// anything else is a definition bug surfaced as an error.
func (p *Player) executeAction(ctx context.Context, idx int, a *macro.Action) error {
	switch a.Kind {
	case macro.ActionPress:
		return p.execPress(ctx, a)
	case macro.ActionTimeline:
		return p.runTimeline(ctx, a)
	case macro.ActionArea:
		return p.execArea(ctx, a)
	case macro.ActionTextInArea:
		return p.guard(ctx, idx, a, func(ctx context.Context) (bool, error) {
			return p.searchText(ctx, idx, a)
		})
	case macro.ActionWait:
		return p.waitActive(ctx, a.Delay.Sample(p.sess.rng))
	case macro.ActionWaitForText:
		return p.guard(ctx, idx, a, func(ctx context.Context) (bool, error) {
			return p.pollForText(ctx, idx, a)
		})
	default:
		return fmt.Errorf("unknown action kind %q at index %d", a.Kind, idx)
	}
}

func (p *Player) execPress(ctx context.Context, a *macro.Action) error {
	for rep := 0; rep < a.Repetitions(); rep++ {
		if d := a.Delay.Sample(p.sess.rng); d > 0 {
			if err := p.idle(ctx, d); err != nil {
				return err
			}
		}
		if err := p.tapCombo(ctx, a.Combo); err != nil {
			return err
		}
	}
	return nil
}

// glideStep is the per-step interval of a cursor glide.
const glideStep = 8 * time.Millisecond

// idle spends a pre-input delay. When the macro enables cursor motion
// and an area action or text match has located a concrete zone, the
// delay is spent gliding the cursor to a random point inside that zone;
// otherwise the engine just waits.
func (p *Player) idle(ctx context.Context, d time.Duration) error {
	sess := p.sess
	if !sess.macro.MoveMouse || !sess.AreaReady() {
		return p.waitActive(ctx, d)
	}
	area := sess.Area()
	if !region.Usable(area) {
		return p.waitActive(ctx, d)
	}
	// Target an interior point, never the area's own border.
	x := randBetween(sess.rng, area.Min.X+1, area.Max.X-1)
	y := randBetween(sess.rng, area.Min.Y+1, area.Max.Y-1)
	return p.glideTo(ctx, x, y, d)
}

// glideTo moves the cursor from its current position to (x, y) over d
// with an eased profile. Budgets too short to animate collapse into a
// wait followed by a single jump.
func (p *Player) glideTo(ctx context.Context, x, y int, d time.Duration) error {
	steps := int(d / glideStep)
	if steps < 2 {
		if err := p.pause.wait(ctx, d); err != nil {
			return err
		}
		return p.injector.MoveTo(x, y)
	}

	sx, sy := p.injector.CursorPos()
	step := d / time.Duration(steps)
	for i := 1; i <= steps; i++ {
		if err := p.pause.wait(ctx, step); err != nil {
			return err
		}
		t := float64(i) / float64(steps)
		t = t * t * (3 - 2*t)
		nx := sx + int(float64(x-sx)*t)
		ny := sy + int(float64(y-sy)*t)
		if err := p.injector.MoveTo(nx, ny); err != nil {
			return err
		}
	}
	return nil
}

func randBetween(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

func (p *Player) execArea(ctx context.Context, a *macro.Action) error {
	base := p.sess.Base()
	rect, err := region.Resolve(a.Region, &base)
	if err != nil {
		return err
	}
	if !region.Usable(rect) {
		return fmt.Errorf("area %q resolved to unusable bounds %v", a.Region.ID, rect)
	}

	p.sess.SetArea(rect)
	if !a.Click {
		return nil
	}
	return p.clickOn(ctx, a, rect)
}

// clickOn moves the cursor to the rect's center and taps the action's
// combo, defaulting to a plain left click.
func (p *Player) clickOn(ctx context.Context, a *macro.Action, rect image.Rectangle) error {
	c := region.Center(rect)
	if err := p.injector.MoveTo(c.X, c.Y); err != nil {
		return err
	}

	combo := a.Combo
	if combo.IsEmpty() {
		combo = macro.MouseCombo(macro.MouseLeft)
	}
	for rep := 0; rep < a.Repetitions(); rep++ {
		if d := a.Delay.Sample(p.sess.rng); d > 0 {
			if err := p.waitActive(ctx, d); err != nil {
				return err
			}
		}
		if err := p.tapCombo(ctx, combo); err != nil {
			return err
		}
	}
	return nil
}

// searchText runs one OCR search for the action's target. On a hit it
// publishes TextMatched, narrows the current area to the match, and
// clicks it when requested.
func (p *Player) searchText(ctx context.Context, idx int, a *macro.Action) (bool, error) {
	base := p.sess.Base()
	rect, err := region.Resolve(a.Region, &base)
	if err != nil {
		return false, err
	}

	m, err := p.matcher.Find(ctx, rect, a.Text)
	if err != nil {
		return false, err
	}
	if !m.Found {
		return false, nil
	}

	p.publish(event.NewTextMatched(p.macroName(), idx, m.Text, m.Bounds))
	p.logger.Debug("text matched",
		"macro", p.macroName(), "index", idx, "text", m.Text, "bounds", m.Bounds)

	if region.Usable(m.Bounds) {
		p.sess.SetArea(m.Bounds)
	}
	if a.Click {
		if err := p.clickOn(ctx, a, m.Bounds); err != nil {
			return false, err
		}
	}
	return true, nil
}

// pollForText searches repeatedly until the target appears or the
// timeout budget is spent. The budget counts active time only: polls
// consumed, never pauses. Timeout zero polls until cancelled.
func (p *Player) pollForText(ctx context.Context, idx int, a *macro.Action) (bool, error) {
	poll := a.Poll
	if poll <= 0 {
		poll = defaultPollInterval
	}

	remaining := time.Duration(-1)
	if a.Timeout > 0 {
		remaining = a.Timeout
	}

	for {
		found, err := p.searchText(ctx, idx, a)
		if err != nil || found {
			return found, err
		}

		if remaining == 0 {
			return false, nil
		}
		sleep := poll
		if remaining > 0 {
			if remaining < sleep {
				sleep = remaining
			}
			remaining -= sleep
		}
		if err := p.waitActive(ctx, sleep); err != nil {
			return false, err
		}
	}
}

// watchStopWord periodically scans the configured region for the
// emergency word and stops playback when it appears. Watcher failures
// never terminate playback; they are logged and the next tick retries.
func (p *Player) watchStopWord(ctx context.Context, sw *StopWordConfig) {
	defer p.watcherWG.Done()

	interval := sw.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		base := p.currentSession().Base()
		rect, err := region.Resolve(sw.Region, &base)
		if err != nil {
			p.logger.Debug("stop word region unresolved", "error", err)
			continue
		}

		m, err := p.matcher.Find(ctx, rect, sw.Text)
		if err != nil {
			p.logger.Debug("stop word scan failed", "error", err)
			continue
		}
		if m.Found {
			p.logger.Warn("stop word detected", "text", sw.Text, "bounds", m.Bounds)
			p.requestStop(event.StopReasonStopWord)
			return
		}
	}
}
