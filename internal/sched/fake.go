package sched

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Scheduler for tests. Callbacks fire only when
// Advance moves the fake clock past their deadline.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
}

type fakeTimer struct {
	s       *Fake
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (ft *fakeTimer) Stop() bool {
	ft.s.mu.Lock()
	defer ft.s.mu.Unlock()
	if ft.fired || ft.stopped {
		return false
	}
	ft.stopped = true
	return true
}

// NewFake creates a Fake scheduler starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// AfterFunc registers f to run when the fake clock reaches now+d.
func (s *Fake) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	ft := &fakeTimer{s: s, at: s.now.Add(d), f: f}
	s.pending = append(s.pending, ft)
	return ft
}

// Now returns the fake clock's current time.
func (s *Fake) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Advance moves the clock forward and runs every due callback in deadline
// order. Callbacks run without the scheduler lock held, so they may schedule
// further timers.
func (s *Fake) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()

	for {
		f := s.nextDue()
		if f == nil {
			return
		}
		f()
	}
}

func (s *Fake) nextDue() func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	sort.SliceStable(s.pending, func(i, j int) bool {
		return s.pending[i].at.Before(s.pending[j].at)
	})
	for _, ft := range s.pending {
		if ft.stopped || ft.fired {
			continue
		}
		if ft.at.After(s.now) {
			continue
		}
		ft.fired = true
		return ft.f
	}
	return nil
}

// PendingCount reports how many timers are armed and not yet fired.
func (s *Fake) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ft := range s.pending {
		if !ft.stopped && !ft.fired {
			n++
		}
	}
	return n
}
