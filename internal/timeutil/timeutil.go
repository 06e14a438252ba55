// Package timeutil abstracts clocks and one-shot timers so components that
// race timers against input can be driven deterministically in tests.
package timeutil

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Timer is a scheduled one-shot callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the callback had not yet
	// fired. Stopping an already-fired or already-stopped timer is a no-op.
	Stop() bool
}

// Scheduler creates one-shot timers.
type Scheduler interface {
	// AfterFunc runs fn once after d elapses.
	AfterFunc(d time.Duration, fn func()) Timer
}

// RealScheduler schedules callbacks on the Go runtime timer heap.
type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) Stop() bool { return r.t.Stop() }
