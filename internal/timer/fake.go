package timer

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manual-clock Scheduler for tests. Callbacks only run from
// Advance, synchronously, on the caller's goroutine.
type Fake struct {
	// IgnoreStop makes stopped callbacks fire anyway, simulating a callback
	// that was already in flight when it was cancelled.
	IgnoreStop bool

	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	f       *Fake
	at      time.Duration
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

// NewFake creates a Fake at elapsed time zero.
func NewFake() *Fake {
	return &Fake{}
}

// AfterFunc implements Scheduler.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{f: f, at: f.now + d, seq: f.seq, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Stop implements Handle.
func (t *fakeTimer) Stop() bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d, running every callback that falls
// due in order. Callbacks scheduled by other callbacks run too if they fall
// inside the window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now + d
	f.mu.Unlock()

	for {
		t := f.nextDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	f.mu.Lock()
	f.now = target
	f.mu.Unlock()
}

// nextDue marks and returns the earliest runnable timer due by target.
func (f *Fake) nextDue(target time.Duration) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()

	sort.SliceStable(f.timers, func(i, j int) bool {
		if f.timers[i].at != f.timers[j].at {
			return f.timers[i].at < f.timers[j].at
		}
		return f.timers[i].seq < f.timers[j].seq
	})
	for _, t := range f.timers {
		if t.fired || t.at > target {
			continue
		}
		if t.stopped && !f.IgnoreStop {
			continue
		}
		t.fired = true
		f.now = t.at
		return t
	}
	return nil
}

// Pending returns the number of callbacks that are scheduled and not
// stopped or fired.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Elapsed returns the fake clock's current offset from creation.
func (f *Fake) Elapsed() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}
