package feed

import (
	"log/slog"
	"sync"
	"time"

	"labwatch/internal/metrics"
	"labwatch/internal/timeutil"
)

// notifier coalesces "something changed" pulses into debounced listener
// callbacks. Container state changes bypass the debounce and fire immediately.
type notifier struct {
	mu    sync.Mutex
	sched timeutil.Scheduler
	delay time.Duration

	nextID         uint64
	dataListeners  map[uint64]func()
	stateListeners map[uint64]func(shortID, state string)

	pending bool
	timer   timeutil.Timer
}

func newNotifier(sched timeutil.Scheduler, delay time.Duration) *notifier {
	return &notifier{
		sched:          sched,
		delay:          delay,
		dataListeners:  make(map[uint64]func()),
		stateListeners: make(map[uint64]func(string, string)),
	}
}

// onData registers a debounced data-changed listener and returns its
// unregister handle.
func (n *notifier) onData(fn func()) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	n.dataListeners[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.dataListeners, id)
	}
}

// onState registers an immediate container-state listener.
func (n *notifier) onState(fn func(shortID, state string)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	n.stateListeners[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.stateListeners, id)
	}
}

// pulse schedules a debounced notification. Pulses arriving while one is
// already pending are absorbed into it.
func (n *notifier) pulse() {
	n.mu.Lock()
	if n.pending {
		n.mu.Unlock()
		return
	}
	n.pending = true
	n.timer = n.sched.AfterFunc(n.delay, n.fire)
	n.mu.Unlock()
}

func (n *notifier) fire() {
	n.mu.Lock()
	n.pending = false
	n.timer = nil
	listeners := make([]func(), 0, len(n.dataListeners))
	for _, fn := range n.dataListeners {
		listeners = append(listeners, fn)
	}
	n.mu.Unlock()

	metrics.NotificationsFired.Inc()
	for _, fn := range listeners {
		safeCall(fn)
	}
}

// stateChanged delivers a container state transition to every state listener,
// immediately and undebounced.
func (n *notifier) stateChanged(shortID, state string) {
	n.mu.Lock()
	listeners := make([]func(string, string), 0, len(n.stateListeners))
	for _, fn := range n.stateListeners {
		listeners = append(listeners, fn)
	}
	n.mu.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("state listener panicked", "panic", r)
				}
			}()
			fn(shortID, state)
		}()
	}
}

// cancel drops any pending debounce without firing it.
func (n *notifier) cancel() {
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.pending = false
	n.mu.Unlock()
}

// reset additionally drops every registered listener. Test isolation only.
func (n *notifier) reset() {
	n.cancel()
	n.mu.Lock()
	n.dataListeners = make(map[uint64]func())
	n.stateListeners = make(map[uint64]func(string, string))
	n.mu.Unlock()
}

// safeCall isolates a listener panic from the rest of the fan-out.
func safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("data listener panicked", "panic", r)
		}
	}()
	fn()
}
