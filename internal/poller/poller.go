// Package poller is the polling fallback producer: when the event feed
// cannot be established it reconstructs the same lab/container/interface
// records through periodic one-shot inspections, behind an API-compatible
// read surface.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"labwatch/internal/feed"
	"labwatch/internal/metrics"
	"labwatch/internal/timeutil"
)

const (
	defaultCacheTTL    = 3 * time.Second
	inspectTimeout     = 10 * time.Second
	// placeholderVersion is what InterfaceVersion always reports: polling
	// cannot observe sub-interval structural changes, so versions would lie.
	placeholderVersion = 1
)

// DockerClient is the slice of the docker engine API the poller needs.
type DockerClient interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	Close() error
}

// NewDockerClient creates a docker client from the environment.
func NewDockerClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return cli, nil
}

// Options configures a Poller.
type Options struct {
	// ClabBinary runs one-shot "inspect interfaces" lookups.
	ClabBinary string
	// Docker lists containers. When nil, Start creates one from the
	// environment and owns its lifetime.
	Docker DockerClient
	// CacheTTL bounds how long an interface lookup is served from cache.
	CacheTTL time.Duration
	Clock    timeutil.Clock
}

// Poller periodically lists containerlab containers and diffs the result
// against the previous snapshot to decide whether listeners hear about it.
type Poller struct {
	mu    sync.Mutex
	opts  Options
	clock timeutil.Clock

	docker     DockerClient
	ownsDocker bool

	labs    map[string]feed.LabContainers
	states  map[string]string // shortID -> coarse state, for diffing
	primed  bool              // first cycle completed
	ifCache map[string]ifCacheEntry

	listeners map[uint64]func()
	nextID    uint64

	cancel context.CancelFunc
}

type ifCacheEntry struct {
	fetched time.Time
	records []feed.InterfaceRecord
}

// New creates a Poller. Nothing runs until Start or ForceUpdate.
func New(opts Options) *Poller {
	if opts.ClabBinary == "" {
		opts.ClabBinary = "containerlab"
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Poller{
		opts:      opts,
		clock:     opts.Clock,
		docker:    opts.Docker,
		labs:      make(map[string]feed.LabContainers),
		states:    make(map[string]string),
		ifCache:   make(map[string]ifCacheEntry),
		listeners: make(map[uint64]func()),
	}
}

// Start begins polling at the given interval until Stop. The first cycle
// runs immediately.
func (p *Poller) Start(scope string, interval time.Duration) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return nil // already polling
	}
	if p.docker == nil {
		cli, err := NewDockerClient()
		if err != nil {
			p.mu.Unlock()
			return err
		}
		p.docker = cli
		p.ownsDocker = true
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(ctx, scope, interval)
	return nil
}

// Stop ends polling. The last snapshot stays readable.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	docker := p.docker
	owns := p.ownsDocker
	if owns {
		p.docker = nil
		p.ownsDocker = false
	}
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if owns && docker != nil {
		_ = docker.Close()
	}
}

func (p *Poller) run(ctx context.Context, scope string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.ForceUpdate(ctx, scope); err != nil && ctx.Err() == nil {
			slog.Warn("poll cycle failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ForceUpdate runs one inspection cycle now. A transient failure keeps the
// previous snapshot so readers never see the world blank out.
func (p *Poller) ForceUpdate(ctx context.Context, scope string) error {
	p.mu.Lock()
	docker := p.docker
	p.mu.Unlock()
	if docker == nil {
		cli, err := NewDockerClient()
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.docker = cli
		p.ownsDocker = true
		docker = cli
		p.mu.Unlock()
	}

	ctx, cancelTO := context.WithTimeout(ctx, inspectTimeout)
	defer cancelTO()

	args := filters.NewArgs(filters.Arg("label", "containerlab"))
	if scope != "" {
		args.Add("label", "containerlab="+scope)
	}
	summaries, err := docker.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		// NotFound means the daemon knows nothing matching the filter; that
		// is an empty lab set, not a failed cycle.
		if !errdefs.IsNotFound(err) {
			metrics.PollCycles.WithLabelValues("error").Inc()
			return fmt.Errorf("list containers: %w", err)
		}
		summaries = nil
	}
	metrics.PollCycles.WithLabelValues("ok").Inc()

	labs, states := groupSummaries(summaries)

	p.mu.Lock()
	changed := p.diffLocked(states)
	p.labs = labs
	p.states = states
	p.primed = true
	listeners := p.snapshotListenersLocked()
	p.mu.Unlock()

	if changed {
		fanOut(listeners)
	}
	return nil
}

// diffLocked decides whether the new listing differs structurally from the
// previous one: container count, identity or coarse state. The very first
// cycle always counts as a change, even when the listing is empty, so
// listeners get their initial snapshot.
func (p *Poller) diffLocked(next map[string]string) bool {
	if !p.primed {
		return true
	}
	if len(next) != len(p.states) {
		return true
	}
	for id, state := range next {
		if prev, ok := p.states[id]; !ok || prev != state {
			return true
		}
	}
	return false
}

// groupSummaries converts a docker listing into the shared read model.
func groupSummaries(summaries []container.Summary) (map[string]feed.LabContainers, map[string]string) {
	labs := make(map[string]feed.LabContainers)
	states := make(map[string]string)

	for _, s := range summaries {
		rec := recordFromSummary(s)
		states[rec.ShortID] = rec.State

		group := labs[rec.Lab]
		if rec.TopoFile != "" {
			group.TopoFile = rec.TopoFile
		}
		group.Containers = append(group.Containers, rec)
		labs[rec.Lab] = group
	}
	for lab, group := range labs {
		sort.Slice(group.Containers, func(i, j int) bool {
			return group.Containers[i].DisplayName() < group.Containers[j].DisplayName()
		})
		labs[lab] = group
	}
	return labs, states
}

func recordFromSummary(s container.Summary) feed.ContainerRecord {
	id := s.ID
	if len(id) > 12 {
		id = id[:12]
	}
	rec := feed.ContainerRecord{
		ShortID: id,
		FullID:  s.ID,
		Image:   s.Image,
		State:   s.State,
		Status:  s.Status,
		Labels:  make(map[string]string, len(s.Labels)),
	}
	for _, name := range s.Names {
		rec.Names = append(rec.Names, strings.TrimPrefix(name, "/"))
	}
	for k, v := range s.Labels {
		rec.Labels[k] = v
	}
	rec.Lab = s.Labels["containerlab"]
	if rec.Lab == "" {
		rec.Lab = feed.UnknownLab
	}
	rec.TopoFile = s.Labels["clab-topo-file"]

	if s.NetworkSettings != nil {
		for netName, ep := range s.NetworkSettings.Networks {
			if ep == nil {
				continue
			}
			if ep.IPAddress != "" && rec.Network.IPv4Address == "" {
				rec.Network.IPv4Address = ep.IPAddress
				rec.Network.IPv4Prefix = ep.IPPrefixLen
				rec.NetworkName = netName
			}
			if ep.GlobalIPv6Address != "" && rec.Network.IPv6Address == "" {
				rec.Network.IPv6Address = ep.GlobalIPv6Address
				rec.Network.IPv6Prefix = ep.GlobalIPv6PrefixLen
			}
		}
	}
	return rec
}

// GroupedContainers returns the last polled snapshot as a deep copy.
func (p *Poller) GroupedContainers() map[string]feed.LabContainers {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]feed.LabContainers, len(p.labs))
	for lab, group := range p.labs {
		cloned := feed.LabContainers{
			TopoFile:   group.TopoFile,
			Containers: make([]feed.ContainerRecord, 0, len(group.Containers)),
		}
		for i := range group.Containers {
			cloned.Containers = append(cloned.Containers, group.Containers[i].Clone())
		}
		out[lab] = cloned
	}
	return out
}

// InterfaceVersion always reports a constant placeholder; see the package
// comment on why polling does not version.
func (p *Poller) InterfaceVersion(string) uint64 {
	return placeholderVersion
}

// OnDataChanged registers a change listener fired after a cycle whose
// listing differs from the previous one.
func (p *Poller) OnDataChanged(fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *Poller) snapshotListenersLocked() []func() {
	out := make([]func(), 0, len(p.listeners))
	for _, fn := range p.listeners {
		out = append(out, fn)
	}
	return out
}

// fanOut invokes listeners, isolating a panic in one from the others.
func fanOut(listeners []func()) {
	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("poll listener panicked", "panic", r)
				}
			}()
			fn()
		}()
	}
}
