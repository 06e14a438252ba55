package feed

import (
	"strconv"
	"strings"
	"time"
)

// uptimeUnits maps docker status-string tokens to durations. Plural and
// abbreviated forms are normalized before lookup.
var uptimeUnits = map[string]time.Duration{
	"second": time.Second,
	"sec":    time.Second,
	"minute": time.Minute,
	"min":    time.Minute,
	"hour":   time.Hour,
	"hr":     time.Hour,
	"day":    24 * time.Hour,
}

// parseUptime recovers an approximate uptime from a docker-style status
// string of the shape "Up <N> <unit> [<N> <unit> ...] (parenthetical)".
// Unrecognized tokens are skipped. The result is minute-granular at best;
// ok is false when no <N> <unit> pair was found.
func parseUptime(status string) (time.Duration, bool) {
	fields := strings.Fields(status)
	if len(fields) == 0 || !strings.EqualFold(fields[0], "up") {
		return 0, false
	}

	var total time.Duration
	found := false
	value := int64(-1)
	for _, tok := range fields[1:] {
		if strings.HasPrefix(tok, "(") {
			break
		}
		tok = strings.ToLower(strings.Trim(tok, ".,"))
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil && n >= 0 {
			value = n
			continue
		}
		if tok == "a" || tok == "an" {
			value = 1
			continue
		}
		unit, ok := uptimeUnits[strings.TrimSuffix(tok, "s")]
		if !ok {
			continue
		}
		if value < 0 {
			continue
		}
		total += time.Duration(value) * unit
		found = true
		value = -1
	}
	return total, found
}

// applySnapshot reconciles the node snapshot cache with a freshly merged
// record and stamps StartedAt and any sticky addresses back onto it.
// eventMillis is the event timestamp (epoch millis).
func (a *Aggregator) applySnapshot(rec *ContainerRecord, verb string, eventMillis int64) {
	key := snapshotKey(rec.Lab, rec.NodeName())
	snap := a.snapshots[key]
	if snap == nil {
		snap = &nodeSnapshot{}
		a.snapshots[key] = snap
	}

	if rec.Network.IPv4Address != "" {
		snap.IPv4 = rec.Network.IPv4Address
		snap.IPv4Prefix = rec.Network.IPv4Prefix
	}
	if rec.Network.IPv6Address != "" {
		snap.IPv6 = rec.Network.IPv6Address
		snap.IPv6Prefix = rec.Network.IPv6Prefix
	}

	if rec.State == StateRunning {
		if d, ok := parseUptime(rec.Status); ok {
			started := eventMillis - d.Milliseconds()
			if started < 0 {
				started = 0
			}
			snap.StartedAt = started
		} else if isFreshLifecycleAction(verb) || snap.StartedAt == 0 {
			snap.StartedAt = eventMillis
		}
		rec.StartedAt = snap.StartedAt
	} else {
		// Not running: no uptime to show, but the snapshot keeps its
		// facts for the next running transition.
		rec.StartedAt = 0
	}

	// Sticky addresses survive events that omit them entirely.
	if rec.Network.IPv4Address == "" && snap.IPv4 != "" {
		rec.Network.IPv4Address = snap.IPv4
		rec.Network.IPv4Prefix = snap.IPv4Prefix
	}
	if rec.Network.IPv6Address == "" && snap.IPv6 != "" {
		rec.Network.IPv6Address = snap.IPv6
		rec.Network.IPv6Prefix = snap.IPv6Prefix
	}
}

// dropSnapshot forgets a node entirely. Called on container removal only;
// a stopped container keeps its snapshot.
func (a *Aggregator) dropSnapshot(rec *ContainerRecord) {
	delete(a.snapshots, snapshotKey(rec.Lab, rec.NodeName()))
}
