// Package sched abstracts one-shot timers so reconnect, rotation, and retry
// logic can be driven by a fake scheduler in tests.
package sched

import "time"

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the callback was prevented
	// from running.
	Stop() bool
}

// Scheduler schedules callbacks to run after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

type realTimer struct{ t *time.Timer }

func (rt realTimer) Stop() bool { return rt.t.Stop() }

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

// New returns a Scheduler backed by time.AfterFunc.
func New() Scheduler {
	return realScheduler{}
}
