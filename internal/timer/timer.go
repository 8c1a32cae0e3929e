// Package timer schedules one-shot delayed callbacks.
//
// Cancellation is best-effort: a callback that has already been dispatched
// may still run after Stop returns. Callers must revalidate their own state
// inside the callback.
package timer

import "time"

// Handle refers to one scheduled callback.
type Handle interface {
	// Stop prevents the callback from running if it has not started yet.
	// Returns false if the callback already ran or was already stopped.
	Stop() bool
}

// Scheduler runs f once after d has elapsed, on its own goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Handle
}

// Real is a Scheduler backed by time.AfterFunc.
type Real struct{}

// AfterFunc implements Scheduler.
func (Real) AfterFunc(d time.Duration, f func()) Handle {
	return time.AfterFunc(d, f)
}
