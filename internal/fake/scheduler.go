package fake

import (
	"sort"
	"sync"
	"time"

	"labwatch/internal/timeutil"
)

var _ timeutil.Scheduler = (*Scheduler)(nil)

// Scheduler is a deterministic timer scheduler driven by a fake Clock.
// Callbacks fire synchronously inside Advance, in deadline order.
type Scheduler struct {
	mu     sync.Mutex
	clock  *Clock
	timers []*Timer
	nextID uint64
}

// NewScheduler creates a Scheduler bound to clock.
func NewScheduler(clock *Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// AfterFunc registers fn to run once the clock passes its deadline.
func (s *Scheduler) AfterFunc(d time.Duration, fn func()) timeutil.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t := &Timer{
		sched:    s,
		id:       s.nextID,
		deadline: s.clock.Now().Add(d),
		fn:       fn,
	}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock forward by d and fires every timer whose deadline
// has been reached, earliest first. A callback may schedule further timers;
// those fire too if their deadline falls within the advanced window.
func (s *Scheduler) Advance(d time.Duration) {
	now := s.clock.advance(d)
	for {
		t := s.popDue(now)
		if t == nil {
			return
		}
		t.fn()
	}
}

// Pending reports how many timers are armed.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) popDue(now time.Time) *Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.Slice(s.timers, func(i, j int) bool {
		if s.timers[i].deadline.Equal(s.timers[j].deadline) {
			return s.timers[i].id < s.timers[j].id
		}
		return s.timers[i].deadline.Before(s.timers[j].deadline)
	})
	if len(s.timers) == 0 || s.timers[0].deadline.After(now) {
		return nil
	}
	t := s.timers[0]
	s.timers = s.timers[1:]
	return t
}

// Timer is a fake one-shot timer.
type Timer struct {
	sched    *Scheduler
	id       uint64
	deadline time.Time
	fn       func()
}

// Stop cancels the timer, reporting whether it was still armed.
func (t *Timer) Stop() bool {
	s := t.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, armed := range s.timers {
		if armed == t {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			return true
		}
	}
	return false
}
