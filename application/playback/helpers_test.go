package playback

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"macroplay-go/domain/macro"
	"macroplay-go/infrastructure/ocr"
)

// fakeInjector records every injected input as "op:name" strings.
type fakeInjector struct {
	mu     sync.Mutex
	ops    []string
	failOn string
	x, y   int
}

func (f *fakeInjector) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
	if f.failOn != "" && strings.HasPrefix(op, f.failOn) {
		return fmt.Errorf("injected failure on %s", op)
	}
	return nil
}

func (f *fakeInjector) KeyDown(name string) error  { return f.record("keydown:" + name) }
func (f *fakeInjector) KeyUp(name string) error    { return f.record("keyup:" + name) }
func (f *fakeInjector) MouseDown(btn string) error { return f.record("mousedown:" + btn) }
func (f *fakeInjector) MouseUp(btn string) error   { return f.record("mouseup:" + btn) }
func (f *fakeInjector) Click(btn string) error     { return f.record("click:" + btn) }
func (f *fakeInjector) MoveTo(x, y int) error {
	f.mu.Lock()
	f.x, f.y = x, y
	f.mu.Unlock()
	return f.record(fmt.Sprintf("move:%d,%d", x, y))
}

func (f *fakeInjector) CursorPos() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.x, f.y
}

func (f *fakeInjector) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeInjector) count(prefix string) int {
	n := 0
	for _, op := range f.snapshot() {
		if strings.HasPrefix(op, prefix) {
			n++
		}
	}
	return n
}

// fakeCapturer serves blank pixels of the requested size.
type fakeCapturer struct {
	bounds image.Rectangle
}

func (f *fakeCapturer) Capture(ctx context.Context, rect image.Rectangle) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rect = rect.Canon()
	return image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy())), nil
}

func (f *fakeCapturer) VirtualBounds() image.Rectangle {
	return f.bounds
}

// scriptedOCR replays a fixed sequence of recognition results; once the
// script runs out the last entry repeats.
type scriptedOCR struct {
	mu        sync.Mutex
	responses [][]ocr.Word
	calls     int
}

func (s *scriptedOCR) Recognize(ctx context.Context, img image.Image) ([]ocr.Word, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if len(s.responses) == 0 {
		return nil, nil
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func (s *scriptedOCR) IsAvailable() bool { return true }
func (s *scriptedOCR) Close() error      { return nil }

func (s *scriptedOCR) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// word builds an OCR word with a clickable bounding box.
func word(text string, conf float64) ocr.Word {
	return ocr.Word{Text: text, Box: image.Rect(4, 4, 60, 20), Confidence: conf}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestPlayer wires a player to fakes. A nil client gets an empty
// script that never recognizes anything.
func newTestPlayer(t *testing.T, client ocr.Client) (*Player, *fakeInjector) {
	t.Helper()
	if client == nil {
		client = &scriptedOCR{}
	}
	inj := &fakeInjector{}
	p := NewPlayer(Config{
		Injector: inj,
		Capturer: &fakeCapturer{bounds: image.Rect(0, 0, 800, 600)},
		OCR:      client,
		Logger:   discardLogger(),
	})
	return p, inj
}

// primeRun gives a player the per-run state Start would build, for unit
// tests that drive internals without spawning the run goroutine.
func primeRun(p *Player, m *macro.Macro) {
	p.m = m
	p.sess = newSession(m, image.Rect(0, 0, 800, 600), 1)
	p.pause = newPauser()
}

// waitDone fails the test if the run does not terminate in time.
func waitDone(t *testing.T, p *Player, timeout time.Duration) Result {
	t.Helper()
	select {
	case <-p.Done():
		return p.Result()
	case <-time.After(timeout):
		t.Fatalf("playback did not terminate within %v", timeout)
		return Result{}
	}
}
