package feed

import "sort"

// labEntry is the incrementally maintained per-lab grouping. Readers never
// pay an aggregation cost: membership is updated as containers come and go.
type labEntry struct {
	topoFile string
	members  map[string]struct{} // container short IDs
}

// storeContainerLocked inserts or replaces a container record and keeps lab
// membership consistent, including moves between labs. Caller holds a.mu.
func (a *Aggregator) storeContainerLocked(old, rec *ContainerRecord) {
	if old != nil && old.Lab != rec.Lab {
		a.removeFromLabLocked(old.Lab, old.ShortID)
	}
	a.byID[rec.ShortID] = rec

	entry := a.labs[rec.Lab]
	if entry == nil {
		entry = &labEntry{members: make(map[string]struct{})}
		a.labs[rec.Lab] = entry
	}
	entry.members[rec.ShortID] = struct{}{}
	if rec.TopoFile != "" {
		entry.topoFile = rec.TopoFile
	}
}

// removeContainerLocked deletes a container and everything keyed by it.
// The lab entry goes too once its last container is gone.
func (a *Aggregator) removeContainerLocked(id string) (*ContainerRecord, bool) {
	rec, ok := a.byID[id]
	if !ok {
		return nil, false
	}
	delete(a.byID, id)
	a.removeFromLabLocked(rec.Lab, id)
	a.dropSnapshot(rec)
	delete(a.ifaces, id)
	delete(a.versions, id)
	return rec, true
}

func (a *Aggregator) removeFromLabLocked(lab, id string) {
	entry := a.labs[lab]
	if entry == nil {
		return
	}
	delete(entry.members, id)
	if len(entry.members) == 0 {
		delete(a.labs, lab)
	}
}

// groupedLocked builds the defensive-copy read view. Caller holds a.mu.
func (a *Aggregator) groupedLocked() map[string]LabContainers {
	out := make(map[string]LabContainers, len(a.labs))
	for lab, entry := range a.labs {
		group := LabContainers{
			TopoFile:   entry.topoFile,
			Containers: make([]ContainerRecord, 0, len(entry.members)),
		}
		for id := range entry.members {
			if rec, ok := a.byID[id]; ok {
				group.Containers = append(group.Containers, rec.Clone())
			}
		}
		sort.Slice(group.Containers, func(i, j int) bool {
			return group.Containers[i].DisplayName() < group.Containers[j].DisplayName()
		})
		out[lab] = group
	}
	return out
}
