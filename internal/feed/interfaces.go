package feed

import (
	"sort"
	"strings"

	"labwatch/internal/metrics"
)

// LabBridgePrefix marks the lab's internal bridge plumbing. Interfaces named
// with it are control-plane artifacts, not container-visible links, and are
// never retained.
const LabBridgePrefix = "clab-br-"

// Interface attribute keys carrying traffic counters. Presence of any of
// them marks a stats-bearing event.
var statKeys = []string{
	"rx_bps", "rx_pps", "rx_bytes", "rx_packets",
	"tx_bps", "tx_pps", "tx_bytes", "tx_packets",
}

// applyInterfaceLocked applies one interface event. It returns whether
// listeners should be pulsed. Caller holds a.mu.
func (a *Aggregator) applyInterfaceLocked(e Event) bool {
	cid := shortID(e.ActorID)
	name := e.Attributes.Str("name")
	if name == "" {
		name = strings.TrimSpace(e.ActorName)
	}
	if cid == "" || name == "" {
		return false
	}
	verb := actionVerb(e.Action)

	tbl := a.ifaces[cid]

	// Deletions and bridge housekeeping interfaces both end up removed;
	// the bridge case additionally never enters the table at all.
	if verb == "delete" || strings.HasPrefix(name, LabBridgePrefix) {
		if _, ok := tbl[name]; !ok {
			return false
		}
		delete(tbl, name)
		a.versions[cid]++
		return true
	}

	old, had := tbl[name]
	rec := old
	rec.Name = name
	statsEvent := a.mergeInterfaceAttrs(&rec, e.Attributes)

	if tbl == nil {
		tbl = make(map[string]InterfaceRecord)
		a.ifaces[cid] = tbl
	}

	// A recycled ifindex means the kernel renamed an interface; evict the
	// stale entry so ghosts do not accumulate.
	evicted := false
	if rec.IfIndex != 0 {
		for other, o := range tbl {
			if other != name && o.IfIndex == rec.IfIndex {
				delete(tbl, other)
				evicted = true
			}
		}
	}

	if had && rec == old && !statsEvent && !evicted {
		return false // no-op update, no write, no bump
	}

	structural := evicted || !had || rec.structural() != old.structural()
	tbl[name] = rec
	metrics.InterfaceUpdates.Inc()
	if structural {
		a.versions[cid]++
		return true
	}
	// Stats-only change: live counters must propagate continuously, but
	// they do not constitute a structural version bump.
	return statsEvent
}

// mergeInterfaceAttrs layers event attributes onto rec: string fields
// overwrite only for string values, numeric fields only for finite numbers.
// It reports whether the event carried traffic counters.
func (a *Aggregator) mergeInterfaceAttrs(rec *InterfaceRecord, attrs Attributes) bool {
	if s, ok := attrs.String("type"); ok {
		rec.Type = s
	}
	if s, ok := attrs.String("state"); ok {
		rec.State = s
	}
	if s, ok := attrs.String("alias"); ok {
		rec.Alias = s
	}
	if s, ok := attrs.String("mac"); ok {
		rec.MAC = s
	}
	if n, ok := attrs.Int("mtu"); ok {
		rec.MTU = n
	}
	if n, ok := attrs.Int("ifindex"); ok {
		rec.IfIndex = n
	}

	if s, ok := attrs.String("netem_delay"); ok {
		rec.NetemDelay = s
	}
	if s, ok := attrs.String("netem_jitter"); ok {
		rec.NetemJitter = s
	}
	if s, ok := attrs.String("netem_loss"); ok {
		rec.NetemLoss = s
	}
	if s, ok := attrs.String("netem_rate"); ok {
		rec.NetemRate = s
	}
	if s, ok := attrs.String("netem_corruption"); ok {
		rec.NetemCorruption = s
	}

	stats := false
	for _, key := range statKeys {
		if _, ok := attrs.Number(key); ok {
			stats = true
			break
		}
	}
	if !stats {
		return false
	}
	if n, ok := attrs.Number("rx_bps"); ok {
		rec.RxBps = n
	}
	if n, ok := attrs.Number("rx_pps"); ok {
		rec.RxPps = n
	}
	if n, ok := attrs.Number("tx_bps"); ok {
		rec.TxBps = n
	}
	if n, ok := attrs.Number("tx_pps"); ok {
		rec.TxPps = n
	}
	if n, ok := attrs.Number("rx_bytes"); ok {
		rec.RxBytes = uint64(n)
	}
	if n, ok := attrs.Number("rx_packets"); ok {
		rec.RxPackets = uint64(n)
	}
	if n, ok := attrs.Number("tx_bytes"); ok {
		rec.TxBytes = uint64(n)
	}
	if n, ok := attrs.Number("tx_packets"); ok {
		rec.TxPackets = uint64(n)
	}
	if n, ok := attrs.Number("stats_interval_seconds"); ok {
		rec.StatsIntervalSeconds = n
	}
	return true
}

// sortInterfaces orders a snapshot by interface name.
func sortInterfaces(recs []InterfaceRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })
}

// dropInterfacesLocked removes every interface of a container in one step,
// bumping the version once. Used when the container leaves running/paused.
func (a *Aggregator) dropInterfacesLocked(cid string) bool {
	if len(a.ifaces[cid]) == 0 {
		return false
	}
	delete(a.ifaces, cid)
	a.versions[cid]++
	return true
}
