package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"labwatch/internal/feed"
)

// inspectedInterface is one entry of "containerlab inspect interfaces
// --format json" output.
type inspectedInterface struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	State   string `json:"state"`
	Alias   string `json:"alias"`
	MAC     string `json:"mac"`
	MTU     int    `json:"mtu"`
	IfIndex int    `json:"ifindex"`
}

type inspectedNode struct {
	Name       string               `json:"name"`
	Interfaces []inspectedInterface `json:"interfaces"`
}

// InterfaceSnapshot returns the interfaces of one container, fetched with a
// one-shot inspect run and cached briefly so a rendering loop does not spawn
// a subprocess per frame. The bridge plumbing interfaces are filtered out,
// matching what the live feed retains.
func (p *Poller) InterfaceSnapshot(ctx context.Context, topoFile, containerName string) ([]feed.InterfaceRecord, error) {
	if topoFile == "" || containerName == "" {
		return nil, nil
	}
	key := topoFile + "::" + containerName

	p.mu.Lock()
	entry, ok := p.ifCache[key]
	ttl := p.opts.CacheTTL
	now := p.clock.Now()
	p.mu.Unlock()
	if ok && now.Sub(entry.fetched) < ttl {
		return cloneInterfaces(entry.records), nil
	}

	nodes, err := p.inspectInterfaces(ctx, topoFile)
	if err != nil {
		// A stale answer beats no answer while the lab churns.
		if ok {
			return cloneInterfaces(entry.records), nil
		}
		return nil, err
	}

	p.mu.Lock()
	fetched := p.clock.Now()
	for _, node := range nodes {
		recs := convertInterfaces(node.Interfaces)
		p.ifCache[topoFile+"::"+node.Name] = ifCacheEntry{fetched: fetched, records: recs}
		if node.Name == containerName {
			entry = ifCacheEntry{fetched: fetched, records: recs}
			ok = true
		}
	}
	p.mu.Unlock()

	if !ok {
		return nil, nil
	}
	return cloneInterfaces(entry.records), nil
}

// inspectInterfaces shells out for the full per-node interface listing of
// one topology.
func (p *Poller) inspectInterfaces(ctx context.Context, topoFile string) ([]inspectedNode, error) {
	ctx, cancel := context.WithTimeout(ctx, inspectTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.opts.ClabBinary,
		"inspect", "interfaces", "--topo", topoFile, "--format", "json")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("inspect interfaces: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("inspect interfaces: %w", err)
	}

	var nodes []inspectedNode
	if err := json.Unmarshal(stdout.Bytes(), &nodes); err != nil {
		return nil, fmt.Errorf("decode inspect output: %w", err)
	}
	return nodes, nil
}

func convertInterfaces(in []inspectedInterface) []feed.InterfaceRecord {
	out := make([]feed.InterfaceRecord, 0, len(in))
	for _, i := range in {
		if i.Name == "" || strings.HasPrefix(i.Name, feed.LabBridgePrefix) {
			continue
		}
		out = append(out, feed.InterfaceRecord{
			Name:    i.Name,
			Type:    i.Type,
			State:   i.State,
			Alias:   i.Alias,
			MAC:     i.MAC,
			MTU:     i.MTU,
			IfIndex: i.IfIndex,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func cloneInterfaces(recs []feed.InterfaceRecord) []feed.InterfaceRecord {
	if recs == nil {
		return nil
	}
	out := make([]feed.InterfaceRecord, len(recs))
	copy(out, recs)
	return out
}
