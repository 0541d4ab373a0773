package playback

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"macroplay-go/core/event"
	"macroplay-go/core/eventbus"
	"macroplay-go/core/state"
	"macroplay-go/domain/macro"
	"macroplay-go/domain/region"
	"macroplay-go/infrastructure/ocr"
)

func zone() region.Region {
	return region.Abs("zone", image.Rect(10, 10, 300, 120))
}

func TestPlayerRunsSequenceOnce(t *testing.T) {
	p, inj := newTestPlayer(t, nil)

	m := &macro.Macro{
		Name: "combo-run",
		Actions: []macro.Action{
			{Kind: macro.ActionPress, Combo: macro.KeyCombo("a")},
			{Kind: macro.ActionWait, Delay: macro.Fixed(5 * time.Millisecond)},
			{Kind: macro.ActionPress, Combo: macro.KeyCombo("b"), Repeat: 2},
		},
	}

	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res := waitDone(t, p, 5*time.Second)

	if res.Reason != event.StopReasonNormal {
		t.Errorf("stop reason = %v, want Normal", res.Reason)
	}
	if got := p.State(); got != state.StateStopped {
		t.Errorf("final state = %v, want Stopped", got)
	}
	if inj.count("keydown:a") != 1 {
		t.Errorf("a pressed %d times, want 1", inj.count("keydown:a"))
	}
	if inj.count("keydown:b") != 2 {
		t.Errorf("b pressed %d times, want 2", inj.count("keydown:b"))
	}
}

func TestPlayerAbortsOnMissingText(t *testing.T) {
	p, inj := newTestPlayer(t, &scriptedOCR{})

	m := &macro.Macro{
		Name: "wait-ready",
		Actions: []macro.Action{
			{Kind: macro.ActionPress, Combo: macro.KeyCombo("F5")},
			{
				Kind:    macro.ActionWaitForText,
				Region:  zone(),
				Text:    "Ready",
				Poll:    10 * time.Millisecond,
				Timeout: 40 * time.Millisecond,
			},
		},
	}

	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res := waitDone(t, p, 5*time.Second)

	if res.Reason != event.StopReasonError {
		t.Fatalf("stop reason = %v, want Error", res.Reason)
	}
	var term *TerminationError
	if !errors.As(res.Err, &term) {
		t.Fatalf("result error = %v, want TerminationError", res.Err)
	}
	if term.ActionIndex != 1 {
		t.Errorf("failing action index = %d, want 1", term.ActionIndex)
	}
	var notFound *TextNotFoundError
	if !errors.As(res.Err, &notFound) {
		t.Errorf("result error = %v, want wrapped TextNotFoundError", res.Err)
	}
	if inj.count("keydown:f5")+inj.count("keydown:F5") != 1 {
		t.Errorf("action before the failing one ran %d times, want 1", inj.count("keydown:F5"))
	}
}

func TestPlayerFallbackStopsMacro(t *testing.T) {
	p, inj := newTestPlayer(t, &scriptedOCR{})

	m := &macro.Macro{
		Name: "loot-or-leave",
		Actions: []macro.Action{
			{
				Kind:   macro.ActionTextInArea,
				Region: zone(),
				Text:   "Loot",
				OnFail: &macro.FailPolicy{
					Kind: macro.FailFallback,
					Fallback: []macro.Action{
						{Kind: macro.ActionPress, Combo: macro.KeyCombo("Escape")},
					},
					OnFallbackDone: macro.OutcomeStopMacro,
				},
			},
			{Kind: macro.ActionPress, Combo: macro.KeyCombo("z")},
		},
	}

	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res := waitDone(t, p, 5*time.Second)

	if res.Reason != event.StopReasonFallback {
		t.Errorf("stop reason = %v, want Fallback", res.Reason)
	}
	if got := inj.count("keydown:Escape"); got != 1 {
		t.Errorf("Escape pressed %d times, want exactly 1", got)
	}
	if got := inj.count("keydown:z"); got != 0 {
		t.Errorf("action after the stop ran %d times, want 0", got)
	}
}

func TestPlayerFallbackRestartsMacro(t *testing.T) {
	// First search misses, triggering the restart fallback; the second
	// cycle's search hits and the run completes normally.
	client := &scriptedOCR{responses: [][]ocr.Word{
		nil,
		{word("Go", 95)},
	}}

	bus := eventbus.New(64)
	defer bus.Close()
	var mu sync.Mutex
	var cycles []int
	bus.Subscribe(func(e event.Event) {
		if cs, ok := e.(*event.CycleStarted); ok {
			mu.Lock()
			cycles = append(cycles, cs.Cycle)
			mu.Unlock()
		}
	})

	inj := &fakeInjector{}
	p := NewPlayer(Config{
		Injector: inj,
		Capturer: &fakeCapturer{bounds: image.Rect(0, 0, 800, 600)},
		OCR:      client,
		Bus:      bus,
		Logger:   discardLogger(),
	})

	m := &macro.Macro{
		Name: "retry-cycle",
		Actions: []macro.Action{
			{
				Kind:   macro.ActionTextInArea,
				Region: zone(),
				Text:   "Go",
				OnFail: &macro.FailPolicy{
					Kind: macro.FailFallback,
					Fallback: []macro.Action{
						{Kind: macro.ActionPress, Combo: macro.KeyCombo("r")},
					},
					OnFallbackDone: macro.OutcomeRestartMacro,
				},
			},
		},
	}

	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res := waitDone(t, p, 5*time.Second)

	if res.Reason != event.StopReasonNormal {
		t.Errorf("stop reason = %v, want Normal after restart succeeds", res.Reason)
	}
	if got := inj.count("keydown:r"); got != 1 {
		t.Errorf("fallback ran %d times, want exactly 1", got)
	}
	if got := client.callCount(); got != 2 {
		t.Errorf("ocr invoked %d times, want 2", got)
	}

	// Event dispatch is asynchronous; give the bus a moment to drain.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		got := append([]int(nil), cycles...)
		mu.Unlock()
		if len(got) >= 2 {
			if got[0] != 1 || got[1] != 2 {
				t.Errorf("cycle numbers = %v, want [1 2]", got)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cycle events = %v, want two cycles", got)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPlayerRepeatsCycles(t *testing.T) {
	p, inj := newTestPlayer(t, nil)

	m := &macro.Macro{
		Name: "triple",
		Actions: []macro.Action{
			{Kind: macro.ActionPress, Combo: macro.KeyCombo("a")},
		},
		Repeat: macro.RepeatSettings{Enabled: true, Count: 3},
	}

	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res := waitDone(t, p, 5*time.Second)

	if res.Reason != event.StopReasonNormal {
		t.Errorf("stop reason = %v, want Normal", res.Reason)
	}
	if got := inj.count("keydown:a"); got != 3 {
		t.Errorf("sequence ran %d times, want 3", got)
	}
}

func TestPlayerStartIndexSkipsPrefix(t *testing.T) {
	p, inj := newTestPlayer(t, nil)

	m := &macro.Macro{
		Name: "resume",
		Actions: []macro.Action{
			{Kind: macro.ActionPress, Combo: macro.KeyCombo("a")},
			{Kind: macro.ActionPress, Combo: macro.KeyCombo("b")},
			{Kind: macro.ActionPress, Combo: macro.KeyCombo("c")},
		},
	}

	if err := p.Start(m, StartOptions{StartIndex: 1}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res := waitDone(t, p, 5*time.Second)

	if res.Reason != event.StopReasonNormal {
		t.Errorf("stop reason = %v, want Normal", res.Reason)
	}
	if inj.count("keydown:a") != 0 {
		t.Error("skipped action ran")
	}
	if inj.count("keydown:b") != 1 || inj.count("keydown:c") != 1 {
		t.Errorf("resumed actions ran %d/%d times, want 1/1",
			inj.count("keydown:b"), inj.count("keydown:c"))
	}
}

func TestPlayerManualStop(t *testing.T) {
	p, _ := newTestPlayer(t, nil)

	m := &macro.Macro{
		Name: "long-wait",
		Actions: []macro.Action{
			{Kind: macro.ActionWait, Delay: macro.Fixed(time.Minute)},
		},
	}

	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if !p.StopWait(5 * time.Second) {
		t.Fatal("StopWait() timed out")
	}
	res := p.Result()

	if res.Reason != event.StopReasonManual {
		t.Errorf("stop reason = %v, want Manual", res.Reason)
	}
	if got := p.State(); got != state.StateStopped {
		t.Errorf("final state = %v, want Stopped", got)
	}
}

func TestPlayerPauseResume(t *testing.T) {
	p, _ := newTestPlayer(t, nil)

	m := &macro.Macro{
		Name: "pausable",
		Actions: []macro.Action{
			{Kind: macro.ActionWait, Delay: macro.Fixed(80 * time.Millisecond)},
		},
	}

	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if got := p.State(); got != state.StateSuspended {
		t.Errorf("state after pause = %v, want Suspended", got)
	}
	if err := p.Pause(); err == nil {
		t.Error("Pause() while suspended succeeded, want error")
	}

	if err := p.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	res := waitDone(t, p, 5*time.Second)
	if res.Reason != event.StopReasonNormal {
		t.Errorf("stop reason = %v, want Normal", res.Reason)
	}
}

func TestPlayerStartRejections(t *testing.T) {
	p, _ := newTestPlayer(t, nil)

	m := &macro.Macro{
		Name: "busy",
		Actions: []macro.Action{
			{Kind: macro.ActionWait, Delay: macro.Fixed(200 * time.Millisecond)},
		},
	}

	if err := p.Start(m, StartOptions{StartIndex: 5}); err == nil {
		t.Error("Start() with out-of-range index succeeded")
	}
	if err := p.Start(&macro.Macro{Name: ""}, StartOptions{}); err == nil {
		t.Error("Start() with invalid macro succeeded")
	}

	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Start(m, StartOptions{}); err == nil {
		t.Error("Start() while running succeeded")
	}

	p.Stop()
	waitDone(t, p, 5*time.Second)

	// A stopped player accepts a fresh run.
	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() after stop error = %v", err)
	}
	p.Stop()
	waitDone(t, p, 5*time.Second)
}

func TestPlayerStopWordTerminatesRun(t *testing.T) {
	client := &scriptedOCR{responses: [][]ocr.Word{
		{word("STOP", 95)},
	}}
	inj := &fakeInjector{}
	p := NewPlayer(Config{
		Injector: inj,
		Capturer: &fakeCapturer{bounds: image.Rect(0, 0, 800, 600)},
		OCR:      client,
		Logger:   discardLogger(),
		StopWord: &StopWordConfig{
			Region:   zone(),
			Text:     "STOP",
			Interval: 10 * time.Millisecond,
		},
	})

	m := &macro.Macro{
		Name: "guarded",
		Actions: []macro.Action{
			{Kind: macro.ActionWait, Delay: macro.Fixed(time.Minute)},
		},
	}

	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res := waitDone(t, p, 5*time.Second)

	if res.Reason != event.StopReasonStopWord {
		t.Errorf("stop reason = %v, want StopWord", res.Reason)
	}
}

func TestPlayerClicksMatchedText(t *testing.T) {
	client := &scriptedOCR{responses: [][]ocr.Word{
		{{Text: "Accept", Box: image.Rect(20, 30, 80, 50), Confidence: 95}},
	}}
	p, inj := newTestPlayer(t, client)

	m := &macro.Macro{
		Name: "click-accept",
		Actions: []macro.Action{
			{
				Kind:   macro.ActionTextInArea,
				Region: region.Abs("dialog", image.Rect(100, 100, 500, 400)),
				Text:   "Accept",
				Click:  true,
			},
		},
	}

	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res := waitDone(t, p, 5*time.Second)

	if res.Reason != event.StopReasonNormal {
		t.Fatalf("stop reason = %v, want Normal", res.Reason)
	}
	// Word box (20,30)-(80,50) inside capture of (100,100): screen box
	// (120,130)-(180,150), center (150,140).
	if got := inj.count("move:150,140"); got != 1 {
		t.Errorf("cursor moves to match center = %d (ops %v), want 1", got, inj.snapshot())
	}
	if got := inj.count("click:left"); got != 1 {
		t.Errorf("clicks = %d, want 1", got)
	}
}

func TestPlayerAreaActionNarrowsAndClicks(t *testing.T) {
	p, inj := newTestPlayer(t, nil)

	target := image.Rect(200, 100, 400, 200)
	m := &macro.Macro{
		Name: "click-area",
		Actions: []macro.Action{
			{Kind: macro.ActionArea, Region: region.Abs("panel", target), Click: true},
		},
	}

	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res := waitDone(t, p, 5*time.Second)

	if res.Reason != event.StopReasonNormal {
		t.Fatalf("stop reason = %v, want Normal", res.Reason)
	}
	if got := inj.count("move:300,150"); got != 1 {
		t.Errorf("cursor moves to area center = %d (ops %v), want 1", got, inj.snapshot())
	}
	if got := inj.count("click:left"); got != 1 {
		t.Errorf("clicks = %d, want 1", got)
	}
}

func TestPlayerReportsSuspendedDuringWaits(t *testing.T) {
	bus := eventbus.New(64)
	defer bus.Close()
	var mu sync.Mutex
	var transitions []string
	bus.Subscribe(func(e event.Event) {
		if sc, ok := e.(*event.StateChanged); ok {
			mu.Lock()
			transitions = append(transitions, sc.OldState.String()+">"+sc.NewState.String())
			mu.Unlock()
		}
	})

	p := NewPlayer(Config{
		Injector: &fakeInjector{},
		Capturer: &fakeCapturer{bounds: image.Rect(0, 0, 800, 600)},
		OCR:      &scriptedOCR{},
		Bus:      bus,
		Logger:   discardLogger(),
	})

	m := &macro.Macro{
		Name: "waity",
		Actions: []macro.Action{
			{Kind: macro.ActionWait, Delay: macro.Fixed(20 * time.Millisecond)},
		},
	}

	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res := waitDone(t, p, 5*time.Second)
	if res.Reason != event.StopReasonNormal {
		t.Fatalf("stop reason = %v, want Normal", res.Reason)
	}

	// The wait must have shown up on the state machine: Suspended while
	// parked, Running again once it completed.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		got := append([]string(nil), transitions...)
		mu.Unlock()
		suspended, resumed := false, false
		for _, tr := range got {
			switch tr {
			case "Running>Suspended":
				suspended = true
			case "Suspended>Running":
				resumed = true
			}
		}
		if suspended && resumed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("transitions = %v, want Running>Suspended and Suspended>Running", got)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPlayerProgressExtendsForFallback(t *testing.T) {
	bus := eventbus.New(64)
	defer bus.Close()
	var mu sync.Mutex
	var progress [][2]int
	bus.Subscribe(func(e event.Event) {
		if pr, ok := e.(*event.Progress); ok {
			mu.Lock()
			progress = append(progress, [2]int{pr.Done, pr.Total})
			mu.Unlock()
		}
	})

	p := NewPlayer(Config{
		Injector: &fakeInjector{},
		Capturer: &fakeCapturer{bounds: image.Rect(0, 0, 800, 600)},
		OCR:      &scriptedOCR{},
		Bus:      bus,
		Logger:   discardLogger(),
	})

	m := &macro.Macro{
		Name: "fallback-progress",
		Actions: []macro.Action{
			{
				Kind:   macro.ActionTextInArea,
				Region: zone(),
				Text:   "Loot",
				OnFail: &macro.FailPolicy{
					Kind: macro.FailFallback,
					Fallback: []macro.Action{
						{Kind: macro.ActionPress, Combo: macro.KeyCombo("e")},
						{Kind: macro.ActionPress, Combo: macro.KeyCombo("f")},
					},
					OnFallbackDone: macro.OutcomeContinue,
				},
			},
			{Kind: macro.ActionPress, Combo: macro.KeyCombo("a")},
		},
	}

	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res := waitDone(t, p, 5*time.Second)
	if res.Reason != event.StopReasonNormal {
		t.Fatalf("stop reason = %v, want Normal", res.Reason)
	}

	// Two top-level actions plus two fallback steps: the total widens
	// from 2 to 4 when the fallback list is entered, and the run ends
	// with every item counted.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		got := append([][2]int(nil), progress...)
		mu.Unlock()
		if len(got) >= 4 {
			if last := got[len(got)-1]; last != [2]int{4, 4} {
				t.Errorf("final progress = %v, want [4 4]", last)
			}
			for i, pr := range got {
				if pr[0] != i+1 {
					t.Errorf("progress %d done = %d, want %d", i, pr[0], i+1)
				}
				if pr[1] != 4 {
					t.Errorf("progress %d total = %d, want 4 after extension", i, pr[1])
				}
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("progress events = %v, want 4", got)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPlayerGlidesCursorDuringPressDelays(t *testing.T) {
	p, inj := newTestPlayer(t, nil)

	target := image.Rect(100, 100, 300, 200)
	m := &macro.Macro{
		Name:      "glide",
		MoveMouse: true,
		Actions: []macro.Action{
			{Kind: macro.ActionArea, Region: region.Abs("panel", target)},
			{Kind: macro.ActionPress, Combo: macro.KeyCombo("a"), Delay: macro.Fixed(40 * time.Millisecond)},
		},
	}

	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res := waitDone(t, p, 5*time.Second)
	if res.Reason != event.StopReasonNormal {
		t.Fatalf("stop reason = %v, want Normal", res.Reason)
	}

	var moves int
	var last string
	for _, op := range inj.snapshot() {
		if strings.HasPrefix(op, "move:") {
			moves++
			last = op
		}
	}
	if moves < 2 {
		t.Fatalf("cursor moved %d times during the press delay, want a multi-step glide (ops %v)",
			moves, inj.snapshot())
	}
	var x, y int
	if _, err := fmt.Sscanf(last, "move:%d,%d", &x, &y); err != nil {
		t.Fatalf("unparseable move op %q: %v", last, err)
	}
	if x <= target.Min.X || x >= target.Max.X || y <= target.Min.Y || y >= target.Max.Y {
		t.Errorf("glide ended at (%d,%d), want a point strictly inside %v", x, y, target)
	}
}

func TestPlayerMoveMouseOffKeepsCursorStill(t *testing.T) {
	p, inj := newTestPlayer(t, nil)

	m := &macro.Macro{
		Name: "still",
		Actions: []macro.Action{
			{Kind: macro.ActionArea, Region: region.Abs("panel", image.Rect(100, 100, 300, 200))},
			{Kind: macro.ActionPress, Combo: macro.KeyCombo("a"), Delay: macro.Fixed(20 * time.Millisecond)},
		},
	}

	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res := waitDone(t, p, 5*time.Second)
	if res.Reason != event.StopReasonNormal {
		t.Fatalf("stop reason = %v, want Normal", res.Reason)
	}
	if got := inj.count("move:"); got != 0 {
		t.Errorf("cursor moved %d times with motion disabled, want 0", got)
	}
}

func TestPlayerRestartAfterStopWordRun(t *testing.T) {
	client := &scriptedOCR{}
	inj := &fakeInjector{}
	p := NewPlayer(Config{
		Injector: inj,
		Capturer: &fakeCapturer{bounds: image.Rect(0, 0, 800, 600)},
		OCR:      client,
		Logger:   discardLogger(),
		StopWord: &StopWordConfig{
			Region:   zone(),
			Text:     "STOP",
			Interval: 5 * time.Millisecond,
		},
	})

	m := &macro.Macro{
		Name: "quick",
		Actions: []macro.Action{
			{Kind: macro.ActionWait, Delay: macro.Fixed(20 * time.Millisecond)},
		},
	}

	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if res := waitDone(t, p, 5*time.Second); res.Reason != event.StopReasonNormal {
		t.Fatalf("first run stop reason = %v, want Normal", res.Reason)
	}

	// Once Done fires the watcher must be gone: no further scans.
	calls := client.callCount()
	time.Sleep(30 * time.Millisecond)
	if got := client.callCount(); got != calls {
		t.Fatalf("watcher still scanning after run finished: %d calls, was %d", got, calls)
	}

	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() after finished run error = %v", err)
	}
	if res := waitDone(t, p, 5*time.Second); res.Reason != event.StopReasonNormal {
		t.Errorf("second run stop reason = %v, want Normal", res.Reason)
	}
}

func TestPlayerRelativeRegionFollowsBase(t *testing.T) {
	// Right half of an 800x600 virtual screen.
	client := &scriptedOCR{responses: [][]ocr.Word{
		{word("Ping", 95)},
	}}
	p, _ := newTestPlayer(t, client)

	m := &macro.Macro{
		Name: "relative",
		Actions: []macro.Action{
			{
				Kind:   macro.ActionTextInArea,
				Region: region.Rel("right-half", region.RelBounds{X1: 0.5, Y1: 0, X2: 1, Y2: 1}),
				Text:   "Ping",
			},
		},
	}

	if err := p.Start(m, StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res := waitDone(t, p, 5*time.Second)

	if res.Reason != event.StopReasonNormal {
		t.Errorf("stop reason = %v, want Normal", res.Reason)
	}
}
