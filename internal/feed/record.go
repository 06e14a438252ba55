package feed

import "strings"

// Coarse container lifecycle states. Unrecognized states from the feed are
// passed through untouched.
const (
	StateCreated = "created"
	StateRunning = "running"
	StatePaused  = "paused"
	StateExited  = "exited"
	StateRemoved = "removed"
)

// UnknownLab groups containers whose events never named a lab.
const UnknownLab = "unknown"

// Containerlab label keys surfaced on container records.
const (
	labelLab      = "containerlab"
	labelNodeName = "clab-node-name"
	labelTopoFile = "clab-topo-file"
)

// NetworkSettings holds the management addresses of a container. Addresses
// are sticky: a later event lacking an address never blanks an earlier one.
type NetworkSettings struct {
	IPv4Address string
	IPv4Prefix  int
	IPv6Address string
	IPv6Prefix  int
}

// ContainerRecord is the merged view of one lab container. ShortID is the
// primary key and stable for the container's lifetime.
type ContainerRecord struct {
	ShortID string
	FullID  string
	// Names is ordered; the first entry is the canonical display name.
	Names []string

	Image  string
	State  string
	Status string
	Labels map[string]string

	Network     NetworkSettings
	Pid         int
	NetworkName string

	Lab      string
	TopoFile string
	// StartedAt is epoch milliseconds, estimated from the node snapshot.
	// Zero unless the container is running.
	StartedAt int64
}

// DisplayName returns the canonical name, falling back to the short ID.
func (c *ContainerRecord) DisplayName() string {
	if len(c.Names) > 0 && c.Names[0] != "" {
		return c.Names[0]
	}
	return c.ShortID
}

// NodeName returns the logical node name used to key the node snapshot cache:
// the clab node-name label when present, otherwise the display name.
func (c *ContainerRecord) NodeName() string {
	if n := c.Labels[labelNodeName]; n != "" {
		return n
	}
	return c.DisplayName()
}

// Clone returns a deep copy. Readers only ever receive clones so they cannot
// corrupt aggregator state.
func (c *ContainerRecord) Clone() ContainerRecord {
	out := *c
	out.Names = append([]string(nil), c.Names...)
	if c.Labels != nil {
		out.Labels = make(map[string]string, len(c.Labels))
		for k, v := range c.Labels {
			out.Labels[k] = v
		}
	}
	return out
}

// InterfaceRecord is the tracked state of one container interface. The
// struct is comparable so the tracker can cheaply detect no-op updates.
type InterfaceRecord struct {
	Name    string
	Type    string
	State   string
	Alias   string
	MAC     string
	MTU     int
	IfIndex int

	// Traffic counters, present only when the feed runs with stats enabled.
	RxBps, RxPps float64
	TxBps, TxPps float64
	RxBytes, RxPackets uint64
	TxBytes, TxPackets uint64
	StatsIntervalSeconds float64

	// Link impairments as reported (display strings like "50ms" or "1.5%").
	NetemDelay      string
	NetemJitter     string
	NetemLoss       string
	NetemRate       string
	NetemCorruption string
}

// structural returns the record with traffic counters zeroed. Version bumps
// key off structural change only; live counters tick too fast to version.
func (r InterfaceRecord) structural() InterfaceRecord {
	r.RxBps, r.RxPps, r.TxBps, r.TxPps = 0, 0, 0, 0
	r.RxBytes, r.RxPackets, r.TxBytes, r.TxPackets = 0, 0, 0, 0
	r.StatsIntervalSeconds = 0
	return r
}

// LabContainers is the per-lab read view: the last known topology file plus
// the lab's containers ordered by display name.
type LabContainers struct {
	TopoFile   string
	Containers []ContainerRecord
}

// nodeSnapshot retains best-known facts about a logical node that must
// survive events which temporarily omit them.
type nodeSnapshot struct {
	IPv4       string
	IPv4Prefix int
	IPv6       string
	IPv6Prefix int
	// StartedAt is epoch milliseconds, exact or estimated from a status
	// string. Zero when unknown.
	StartedAt int64
}

// snapshotKey builds the node snapshot cache key: lab::node, case-insensitive.
func snapshotKey(lab, node string) string {
	return strings.ToLower(lab) + "::" + strings.ToLower(node)
}

// shortID normalizes an actor ID to the 12-character short form.
func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
