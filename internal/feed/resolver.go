package feed

import (
	"context"
	"sync"
	"time"

	"labwatch/internal/timeutil"
)

// loadOutcome is the resolution state of the initial-load signal.
type loadOutcome int

const (
	loadPending loadOutcome = iota
	loadResolved
	loadRejected
)

// loadResolver decides when the backlog replay of a fresh feed is complete.
//
// Two timers race. The idle timer is re-armed on every applied event; when it
// fires unreset the backlog is drained. The fallback timer covers the
// perfectly-silent feed: it fires unconditionally unless an event ever
// arrives, at which point the idle path takes over exclusively. Whichever
// fires first resolves the signal exactly once; a feed failure rejects it
// instead. There is no third outcome.
type loadResolver struct {
	mu    sync.Mutex
	sched timeutil.Scheduler
	idle  time.Duration

	outcome loadOutcome
	err     error
	done    chan struct{}

	idleTimer     timeutil.Timer
	fallbackTimer timeutil.Timer
	sawEvent      bool
}

// newLoadResolver arms the fallback timer immediately. The idle timer is
// armed by the first applied event.
func newLoadResolver(sched timeutil.Scheduler, idle, fallback time.Duration) *loadResolver {
	r := &loadResolver{
		sched: sched,
		idle:  idle,
		done:  make(chan struct{}),
	}
	// Armed under the lock: the callback runs on another goroutine and may
	// reach settle before AfterFunc even returns.
	r.mu.Lock()
	r.fallbackTimer = sched.AfterFunc(fallback, r.resolve)
	r.mu.Unlock()
	return r
}

// eventApplied re-arms the idle timer and, on the first event, cancels the
// fallback timer for good.
func (r *loadResolver) eventApplied() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcome != loadPending {
		return
	}
	if !r.sawEvent {
		r.sawEvent = true
		if r.fallbackTimer != nil {
			r.fallbackTimer.Stop()
			r.fallbackTimer = nil
		}
	}
	if r.idleTimer != nil {
		r.idleTimer.Stop()
	}
	r.idleTimer = r.sched.AfterFunc(r.idle, r.resolve)
}

// resolve marks the initial load complete. First resolution wins; later
// calls (the losing timer, duplicate fires) are no-ops.
func (r *loadResolver) resolve() {
	r.settle(loadResolved, nil)
}

// reject fails the initial load with a descriptive error.
func (r *loadResolver) reject(err error) {
	r.settle(loadRejected, err)
}

func (r *loadResolver) settle(outcome loadOutcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcome != loadPending {
		return
	}
	r.outcome = outcome
	r.err = err
	if r.idleTimer != nil {
		r.idleTimer.Stop()
		r.idleTimer = nil
	}
	if r.fallbackTimer != nil {
		r.fallbackTimer.Stop()
		r.fallbackTimer = nil
	}
	close(r.done)
}

// isPending reports whether the signal has not settled yet.
func (r *loadResolver) isPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome == loadPending
}

// wait blocks until the signal settles or ctx is done. It returns nil on
// resolution and the rejection error otherwise.
func (r *loadResolver) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
