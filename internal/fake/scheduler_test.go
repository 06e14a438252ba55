package fake

import (
	"testing"
	"time"
)

func TestSchedulerFiresInDeadlineOrder(t *testing.T) {
	clock := NewClock(time.UnixMilli(0))
	sched := NewScheduler(clock)

	var order []string
	sched.AfterFunc(30*time.Millisecond, func() { order = append(order, "c") })
	sched.AfterFunc(10*time.Millisecond, func() { order = append(order, "a") })
	sched.AfterFunc(20*time.Millisecond, func() { order = append(order, "b") })

	sched.Advance(15 * time.Millisecond)
	if len(order) != 1 || order[0] != "a" {
		t.Fatalf("order = %v", order)
	}
	sched.Advance(15 * time.Millisecond)
	if len(order) != 3 || order[1] != "b" || order[2] != "c" {
		t.Fatalf("order = %v", order)
	}
	if sched.Pending() != 0 {
		t.Errorf("pending = %d", sched.Pending())
	}
}

func TestSchedulerStop(t *testing.T) {
	clock := NewClock(time.UnixMilli(0))
	sched := NewScheduler(clock)

	fired := false
	timer := sched.AfterFunc(10*time.Millisecond, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("Stop on an armed timer returned false")
	}
	if timer.Stop() {
		t.Fatal("second Stop returned true")
	}
	sched.Advance(time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestSchedulerCallbackSchedulesTimer(t *testing.T) {
	clock := NewClock(time.UnixMilli(0))
	sched := NewScheduler(clock)

	fired := 0
	sched.AfterFunc(10*time.Millisecond, func() {
		fired++
		sched.AfterFunc(10*time.Millisecond, func() { fired++ })
	})

	// The chained timer's deadline falls inside the advanced window, so one
	// Advance fires both.
	sched.Advance(25 * time.Millisecond)
	if fired != 2 {
		t.Errorf("fired = %d, want 2", fired)
	}
}
