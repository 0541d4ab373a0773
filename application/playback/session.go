package playback

import (
	"image"
	"math/rand"
	"sync"
	"time"

	"macroplay-go/domain/macro"
)

// frame records one level of the interpreter's position stack: which
// action list is being executed (top-level, fallback, or trigger) and
// the current index within it.
type frame struct {
	// kind names the list for diagnostics: "macro", "fallback", "trigger"
	kind  string
	index int
}

// session is the per-run state of a playback: the resolved base area,
// the current search area, the position stack and the cycle counter.
// A restart discards the session and builds a fresh one; only the cycle
// counter carries over.
type session struct {
	macro *macro.Macro
	rng   *rand.Rand

	startedAt time.Time
	cycle     int

	mu        sync.Mutex
	base      image.Rectangle
	area      image.Rectangle
	areaReady bool
	done      int
	total     int
	frames    []frame
}

func newSession(m *macro.Macro, base image.Rectangle, cycle int) *session {
	return &session{
		macro:     m,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		startedAt: time.Now(),
		cycle:     cycle,
		base:      base,
		area:      base,
		total:     len(m.Actions),
	}
}

// Base returns the resolved base area for this run.
func (s *session) Base() image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

// Area returns the current search area. It starts as the base area and
// is narrowed by area actions and successful text matches.
func (s *session) Area() image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.area
}

// SetArea narrows the current search area. Once set, the area is also
// the target zone for idle cursor motion.
func (s *session) SetArea(r image.Rectangle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.area = r
	s.areaReady = true
}

// AreaReady reports whether an area action or text match has located a
// concrete zone this run.
func (s *session) AreaReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.areaReady
}

// extendProgress widens the progress total when a nested action list
// (fallback, triggers) adds work mid-run.
func (s *session) extendProgress(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total += n
}

// skipProgress marks the first n items as already done, for runs resumed
// mid-sequence.
func (s *session) skipProgress(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done += n
}

// completeItem counts one finished action and returns the progress pair.
func (s *session) completeItem() (done, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done++
	return s.done, s.total
}

// push enters a nested action list.
func (s *session) push(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame{kind: kind})
}

// pop leaves the current action list.
func (s *session) pop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) > 0 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

// setIndex records the position within the current list.
func (s *session) setIndex(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) > 0 {
		s.frames[len(s.frames)-1].index = i
	}
}

// topIndex reports the index at the top-level list, or -1 when the
// interpreter is not inside the macro body.
func (s *session) topIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return -1
	}
	return s.frames[0].index
}

// depth reports how deeply nested the interpreter currently is.
func (s *session) depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}
