package playback

import (
	"context"
	"sync"
	"time"
)

// pauser is the suspension gate shared by every wait inside a run.
// Pausing closes the pause channel so in-flight waits can park; resuming
// closes the resume channel so they can continue. Paused time is never
// counted against a wait.
type pauser struct {
	mu       sync.Mutex
	paused   bool
	pausedAt time.Time
	total    time.Duration // paused time accumulated over completed suspensions
	pauseCh  chan struct{} // closed when a pause is requested
	resume   chan struct{} // closed when playback resumes
}

func newPauser() *pauser {
	return &pauser{pauseCh: make(chan struct{})}
}

// Pause requests suspension. Idempotent.
func (p *pauser) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return false
	}
	p.paused = true
	p.pausedAt = time.Now()
	p.resume = make(chan struct{})
	close(p.pauseCh)
	return true
}

// Resume lifts a suspension. Idempotent.
func (p *pauser) Resume() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return false
	}
	p.paused = false
	p.total += time.Since(p.pausedAt)
	p.pauseCh = make(chan struct{})
	close(p.resume)
	return true
}

// pausedTotal returns the cumulative time spent paused, including the
// current suspension if one is in progress.
func (p *pauser) pausedTotal() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := p.total
	if p.paused {
		total += time.Since(p.pausedAt)
	}
	return total
}

// active converts the wall-clock span since start into active time by
// subtracting the pause time accumulated since mark (a pausedTotal
// snapshot taken at start).
func (p *pauser) active(start time.Time, mark time.Duration) time.Duration {
	d := time.Since(start) - (p.pausedTotal() - mark)
	if d < 0 {
		return 0
	}
	return d
}

// signal returns a channel that is closed when a pause is requested.
func (p *pauser) signal() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pauseCh
}

// await blocks while paused. Returns ctx.Err() if the context is
// cancelled during the suspension.
func (p *pauser) await(ctx context.Context) error {
	for {
		p.mu.Lock()
		if !p.paused {
			p.mu.Unlock()
			return nil
		}
		resume := p.resume
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resume:
		}
	}
}

// wait sleeps for d, excluding any time spent paused. It parks without
// polling: the timer is stopped on pause and re-armed with the remaining
// duration on resume. Returns ctx.Err() on cancellation.
func (p *pauser) wait(ctx context.Context, d time.Duration) error {
	remaining := d
	for {
		if err := p.await(ctx); err != nil {
			return err
		}
		if remaining <= 0 {
			return nil
		}

		start := time.Now()
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-p.signal():
			timer.Stop()
			remaining -= time.Since(start)
		}
	}
}
