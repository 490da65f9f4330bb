package clock

import (
	"sync"
	"time"
)

// Fake is a manually driven Clock.
//
// Wall time and elapsed time are tracked separately, like the runtime's
// wall and monotonic readings: Set steps only the wall time (an NTP step),
// while Advance moves both and fires any After channels that came due.
type Fake struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	elapsed time.Duration
	waiters []fakeWaiter
}

type fakeWaiter struct {
	due time.Duration
	ch  chan time.Time
}

// NewFake returns a Fake reading t.
func NewFake(t time.Time) *Fake {
	f := &Fake{now: t}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Now returns the fake wall time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After returns a channel that receives once the fake clock has advanced by d.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.waiters = append(f.waiters, fakeWaiter{due: f.elapsed + d, ch: ch})
	f.cond.Broadcast()
	return ch
}

// Set steps the wall time without firing timers.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// Advance moves the clock forward by d and fires due timers.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)
	f.elapsed += d

	pending := f.waiters[:0]
	for _, w := range f.waiters {
		if w.due <= f.elapsed {
			w.ch <- f.now
			continue
		}
		pending = append(pending, w)
	}
	f.waiters = pending
}

// Waiters returns the number of pending After channels.
func (f *Fake) Waiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

// BlockUntil blocks until at least n After channels are pending.
func (f *Fake) BlockUntil(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.waiters) < n {
		f.cond.Wait()
	}
}
