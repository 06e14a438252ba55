// Package feed reconstructs a queryable model of containerlab labs,
// containers and interfaces from the containerlab events stream.
//
// A single Aggregator owns all state. One subprocess produces JSON lines;
// the merge pipeline folds them into per-lab container records and per-
// container interface tables. Readers query synchronously at any time and
// only ever receive defensive copies; they never block on the stream.
package feed

import (
	"bytes"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"labwatch/internal/check"
	"labwatch/internal/metrics"
	"labwatch/internal/timeutil"
)

// Default timer settings; Options overrides them.
const (
	defaultIdleTimeout     = 300 * time.Millisecond
	defaultFallbackTimeout = 5 * time.Second
	defaultDebounce        = 50 * time.Millisecond
)

// Options configures an Aggregator. Zero durations take the defaults;
// a nil Clock/Scheduler takes the real ones.
type Options struct {
	// Binary is the containerlab binary that produces the feed.
	Binary string
	// IncludeStats asks the feed for interface traffic counters.
	IncludeStats bool
	// RestartOnExit restarts a feed that dies after initial load completed,
	// with exponential backoff. Without it the supervisor only tears down.
	RestartOnExit bool

	IdleTimeout     time.Duration
	FallbackTimeout time.Duration
	Debounce        time.Duration

	Clock     timeutil.Clock
	Scheduler timeutil.Scheduler
}

// Aggregator is the single-writer owner of the reconstructed model.
// All mutation is serialized on mu; reads copy out under the same lock.
type Aggregator struct {
	mu    sync.Mutex
	opts  Options
	clock timeutil.Clock
	sched timeutil.Scheduler
	notif *notifier

	labs      map[string]*labEntry
	byID      map[string]*ContainerRecord
	snapshots map[string]*nodeSnapshot
	ifaces    map[string]map[string]InterfaceRecord
	versions  map[string]uint64

	proc   *feedProcess
	gen    uint64 // bumped on every teardown; fences stale callbacks
	closed bool
}

// New creates an Aggregator. It does not start anything; call EnsureFeed.
func New(opts Options) *Aggregator {
	if opts.Binary == "" {
		opts.Binary = "containerlab"
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.FallbackTimeout <= 0 {
		opts.FallbackTimeout = defaultFallbackTimeout
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = timeutil.RealScheduler{}
	}

	a := &Aggregator{
		opts:  opts,
		clock: opts.Clock,
		sched: opts.Scheduler,
		notif: newNotifier(opts.Scheduler, opts.Debounce),
	}
	a.clearStateLocked()
	return a
}

func (a *Aggregator) clearStateLocked() {
	a.labs = make(map[string]*labEntry)
	a.byID = make(map[string]*ContainerRecord)
	a.snapshots = make(map[string]*nodeSnapshot)
	a.ifaces = make(map[string]map[string]InterfaceRecord)
	a.versions = make(map[string]uint64)
}

// stateChange is a container transition queued for immediate listener
// delivery once the aggregator lock is released.
type stateChange struct {
	shortID string
	state   string
}

// handleLine processes one feed line end to end. Malformed lines are logged
// and dropped; they never stop the pipeline.
func (a *Aggregator) handleLine(gen uint64, line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	e, err := decodeEvent(line)
	if err != nil {
		metrics.EventsDropped.Inc()
		slog.Warn("dropping malformed feed line", "err", err)
		return
	}
	metrics.EventsDecoded.WithLabelValues(e.Type).Inc()

	a.mu.Lock()
	if a.proc == nil || a.proc.gen != gen {
		a.mu.Unlock()
		return // stale line from a torn-down feed
	}
	resolver := a.proc.resolver

	var changes []stateChange
	pulse := false
	switch e.Type {
	case eventTypeContainer:
		changes, pulse = a.applyContainerLocked(e)
	case eventTypeInterface:
		pulse = a.applyInterfaceLocked(e)
	default:
		// Unknown event types are ignored but still count as backlog
		// progress for the initial-load resolver.
	}
	a.mu.Unlock()

	resolver.eventApplied()
	for _, c := range changes {
		a.notif.stateChanged(c.shortID, c.state)
	}
	if pulse {
		a.notif.pulse()
	}
}

// applyContainerLocked merges one container event. Caller holds a.mu.
func (a *Aggregator) applyContainerLocked(e Event) ([]stateChange, bool) {
	verb := actionVerb(e.Action)
	if isExecAction(verb) {
		return nil, false
	}
	id := shortID(e.ActorID)
	if id == "" {
		return nil, false
	}

	// "gone" is a different thing than "stopped": destroy removes the
	// record, while stop/die/kill keep it queryable.
	if verb == "destroy" {
		rec, ok := a.removeContainerLocked(id)
		if !ok {
			return nil, false
		}
		slog.Debug("container removed", "id", id, "lab", rec.Lab)
		return []stateChange{{shortID: id, state: StateRemoved}}, true
	}

	existing := a.byID[id]
	merged := mergeContainer(existing, containerFromEvent(e), e.Action)
	check.Assert(merged.ShortID == id, "merge must preserve the short ID")
	a.applySnapshot(&merged, verb, eventTimeMillis(e, a.clock))

	var changes []stateChange
	if existing == nil || existing.State != merged.State {
		changes = append(changes, stateChange{shortID: id, state: merged.State})
	}

	changed := existing == nil || !reflect.DeepEqual(*existing, merged)
	if merged.State != StateRunning && merged.State != StatePaused {
		if a.dropInterfacesLocked(id) {
			changed = true
		}
	}
	if !changed {
		return changes, false // reapplying the same event is a no-op
	}

	a.storeContainerLocked(existing, &merged)
	metrics.ContainerMerges.Inc()
	return changes, true
}

// GroupedContainers returns every known lab with its containers ordered by
// display name. The result is a deep copy.
func (a *Aggregator) GroupedContainers() map[string]LabContainers {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.groupedLocked()
}

// InterfaceSnapshot returns the tracked interfaces of a container sorted by
// name, or nil when none are tracked. The display name is a fallback key for
// callers that lost the short ID.
func (a *Aggregator) InterfaceSnapshot(shortID, displayName string) []InterfaceRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	tbl := a.ifaces[shortID]
	if tbl == nil && displayName != "" {
		if rec := a.findByNameLocked(displayName); rec != nil {
			tbl = a.ifaces[rec.ShortID]
		}
	}
	if len(tbl) == 0 {
		return nil
	}

	out := make([]InterfaceRecord, 0, len(tbl))
	for _, rec := range tbl {
		out = append(out, rec)
	}
	sortInterfaces(out)
	return out
}

// InterfaceVersion returns the structural-change counter for a container,
// zero if never observed.
func (a *Aggregator) InterfaceVersion(shortID string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.versions[shortID]
}

func (a *Aggregator) findByNameLocked(name string) *ContainerRecord {
	for _, rec := range a.byID {
		for _, n := range rec.Names {
			if n == name {
				return rec
			}
		}
	}
	return nil
}

// OnDataChanged registers a debounced change listener. The returned handle
// unregisters it.
func (a *Aggregator) OnDataChanged(fn func()) func() {
	return a.notif.onData(fn)
}

// OnContainerStateChanged registers an undebounced listener fired whenever a
// tracked container's coarse state actually changes.
func (a *Aggregator) OnContainerStateChanged(fn func(shortID, state string)) func() {
	return a.notif.onState(fn)
}

// ResetForTests tears the feed down and clears all state, listeners
// included. Test isolation only.
func (a *Aggregator) ResetForTests() {
	a.mu.Lock()
	a.teardownLocked(errTornDown)
	a.clearStateLocked()
	a.closed = false
	a.mu.Unlock()
	a.notif.reset()
}

// Shutdown tears the feed down for good. Further EnsureFeed calls fail.
func (a *Aggregator) Shutdown() {
	a.mu.Lock()
	a.closed = true
	a.teardownLocked(errTornDown)
	a.mu.Unlock()
	a.notif.cancel()
}
