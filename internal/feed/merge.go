package feed

import (
	"regexp"
	"strings"
)

// containerFromEvent builds the incoming (pre-merge) record for a container
// event. Missing attributes stay zero; merge precedence decides what survives.
func containerFromEvent(e Event) ContainerRecord {
	attrs := e.Attributes
	rec := ContainerRecord{
		ShortID: shortID(e.ActorID),
		FullID:  strings.TrimSpace(e.ActorFullID),
		Image:   attrs.Str("image"),
		State:   strings.ToLower(strings.TrimSpace(attrs.Str("state"))),
		Status:  attrs.Str("status"),
		Lab:     strings.TrimSpace(attrs.Str(labelLab)),
	}

	if name := strings.TrimPrefix(attrs.Str("name"), "/"); name != "" {
		rec.Names = []string{name}
	} else if n := strings.TrimPrefix(strings.TrimSpace(e.ActorName), "/"); n != "" {
		rec.Names = []string{n}
	}

	for key, val := range attrs {
		s, ok := val.(string)
		if !ok {
			continue
		}
		if key == labelLab || strings.HasPrefix(key, "clab-") {
			if rec.Labels == nil {
				rec.Labels = make(map[string]string)
			}
			rec.Labels[key] = s
		}
	}
	rec.TopoFile = rec.Labels[labelTopoFile]
	if rec.TopoFile == "" {
		rec.TopoFile = attrs.Str("topo_file")
	}

	if pid, ok := attrs.Int("pid"); ok {
		rec.Pid = pid
	}
	rec.NetworkName = attrs.Str("network_name")

	rec.Network.IPv4Address, rec.Network.IPv4Prefix = splitAddr(attrs.Str("mgmt_ipv4"))
	rec.Network.IPv6Address, rec.Network.IPv6Prefix = splitAddr(attrs.Str("mgmt_ipv6"))
	return rec
}

// splitAddr splits "172.20.0.2/24" into address and prefix length.
// A bare address is accepted with prefix 0.
func splitAddr(s string) (string, int) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", 0
	}
	addr, prefixStr, found := strings.Cut(s, "/")
	if !found {
		return addr, 0
	}
	prefix := 0
	for _, c := range prefixStr {
		if c < '0' || c > '9' {
			return addr, 0
		}
		prefix = prefix*10 + int(c-'0')
	}
	return addr, prefix
}

// mergeContainer folds an incoming event record into the existing one,
// applying the field-level precedence rules. existing may be nil. action is
// the raw event action; it carries the health detail for status splicing.
func mergeContainer(existing *ContainerRecord, inc ContainerRecord, action string) ContainerRecord {
	verb := actionVerb(action)

	var out ContainerRecord
	if existing != nil {
		out = existing.Clone()
	} else {
		out.ShortID = inc.ShortID
	}

	// Identity: incoming wins when present.
	if inc.FullID != "" {
		out.FullID = inc.FullID
	}
	if len(inc.Names) > 0 {
		out.Names = append([]string(nil), inc.Names...)
	}

	// Lab name: keep a meaningful existing name over an empty/placeholder one.
	if inc.Lab != "" && inc.Lab != UnknownLab {
		out.Lab = inc.Lab
	}
	if out.Lab == "" {
		out.Lab = UnknownLab
	}

	if inc.TopoFile != "" {
		out.TopoFile = inc.TopoFile
	}

	// Labels: shallow-merge, incoming keys override.
	if len(inc.Labels) > 0 {
		if out.Labels == nil {
			out.Labels = make(map[string]string, len(inc.Labels))
		}
		for k, v := range inc.Labels {
			out.Labels[k] = v
		}
	}

	// Addresses are sticky per family.
	if inc.Network.IPv4Address != "" {
		out.Network.IPv4Address = inc.Network.IPv4Address
		out.Network.IPv4Prefix = inc.Network.IPv4Prefix
	}
	if inc.Network.IPv6Address != "" {
		out.Network.IPv6Address = inc.Network.IPv6Address
		out.Network.IPv6Prefix = inc.Network.IPv6Prefix
	}

	if inc.Image != "" {
		out.Image = inc.Image
	}
	if inc.Pid != 0 {
		out.Pid = inc.Pid
	}
	if inc.NetworkName != "" {
		out.NetworkName = inc.NetworkName
	}

	out.Status = mergeStatus(out.Status, inc.Status, action, verb)
	out.State = mergeState(out.State, inc.State, verb)
	return out
}

// mergeStatus applies the status precedence rules:
//   - termination actions trust the incoming value verbatim, even empty;
//   - health-check actions splice the health suffix onto the retained status;
//   - otherwise prefer non-empty incoming.
func mergeStatus(existing, incoming, action, verb string) string {
	if isTerminationAction(verb) {
		return incoming
	}
	if suffix, ok := healthSuffix(action); ok {
		base := existing
		if incoming != "" {
			base = incoming
		}
		return spliceHealth(base, suffix)
	}
	if incoming != "" {
		return incoming
	}
	return existing
}

// healthSuffix extracts the parenthetical suffix from a health action string
// such as "health_status: healthy".
func healthSuffix(action string) (string, bool) {
	verb, detail, found := strings.Cut(strings.TrimSpace(strings.ToLower(action)), ":")
	if strings.TrimSpace(verb) != "health_status" || !found {
		return "", false
	}
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return "", false
	}
	switch detail {
	case "healthy", "unhealthy":
		return "(" + detail + ")", true
	default:
		return "(health: " + detail + ")", true
	}
}

var healthSuffixRe = regexp.MustCompile(`\s*\((healthy|unhealthy|health: [^)]*)\)\s*$`)

// spliceHealth appends the health suffix to status, replacing any prior one.
func spliceHealth(status, suffix string) string {
	base := strings.TrimRight(healthSuffixRe.ReplaceAllString(status, ""), " ")
	if base == "" {
		return suffix
	}
	return base + " " + suffix
}

// mergeState applies state precedence: an incoming state that is empty or
// merely echoes the action verb defers to the action derivation, then to the
// existing state.
func mergeState(existing, incoming, verb string) string {
	if incoming != "" && incoming != verb {
		return incoming
	}
	if derived := deriveState(verb); derived != "" {
		return derived
	}
	return existing
}
