// Package clock abstracts wall time and one-shot timers so reminder timing
// can be driven by a virtual clock in tests.
package clock

import "time"

// Clock is the time source used by the scheduler.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call if it has not started. It reports whether it did.
	Stop() bool
}

// Real is the process wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
