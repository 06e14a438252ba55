package feed

import "testing"

func TestSplitAddr(t *testing.T) {
	tests := []struct {
		in     string
		addr   string
		prefix int
	}{
		{"172.20.0.2/24", "172.20.0.2", 24},
		{"172.20.0.2", "172.20.0.2", 0},
		{"2001:db8::2/64", "2001:db8::2", 64},
		{"10.0.0.1/xx", "10.0.0.1", 0},
		{"", "", 0},
	}
	for _, tt := range tests {
		addr, prefix := splitAddr(tt.in)
		if addr != tt.addr || prefix != tt.prefix {
			t.Errorf("splitAddr(%q) = %q, %d; want %q, %d", tt.in, addr, prefix, tt.addr, tt.prefix)
		}
	}
}

func TestMergeStatus(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		incoming string
		action   string
		want     string
	}{
		{"non-empty incoming wins", "Up 2 minutes", "Up 3 minutes", "update", "Up 3 minutes"},
		{"empty incoming keeps existing", "Up 2 minutes", "", "update", "Up 2 minutes"},
		{"termination trusts incoming verbatim", "Up 2 minutes", "Exited (0) 1 second ago", "die", "Exited (0) 1 second ago"},
		{"termination trusts empty incoming", "Up 2 minutes", "", "stop", ""},
		{"healthy splice", "Up 2 minutes", "", "health_status: healthy", "Up 2 minutes (healthy)"},
		{"unhealthy splice replaces prior suffix", "Up 2 minutes (healthy)", "", "health_status: unhealthy", "Up 2 minutes (unhealthy)"},
		{"odd health detail", "Up 5 seconds", "", "health_status: starting", "Up 5 seconds (health: starting)"},
		{"health splice onto empty base", "", "", "health_status: healthy", "(healthy)"},
		{"health prefers incoming base", "Up 1 minute", "Up 2 minutes", "health_status: healthy", "Up 2 minutes (healthy)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeStatus(tt.existing, tt.incoming, tt.action, actionVerb(tt.action))
			if got != tt.want {
				t.Errorf("mergeStatus = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMergeState(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		incoming string
		verb     string
		want     string
	}{
		{"incoming wins", StateRunning, StateExited, "die", StateExited},
		{"echoing verb defers to derivation", "", "start", "start", StateRunning},
		{"empty incoming derives from verb", StateCreated, "", "start", StateRunning},
		{"underivable keeps existing", StateRunning, "", "health_status", StateRunning},
		{"unknown state passes through", StateRunning, "restarting", "die", "restarting"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mergeState(tt.existing, tt.incoming, tt.verb); got != tt.want {
				t.Errorf("mergeState = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMergeContainerStickyAddresses(t *testing.T) {
	first := containerFromEvent(Event{
		Type:    eventTypeContainer,
		Action:  "start",
		ActorID: "abc123456789ffff",
		Attributes: Attributes{
			"name":         "clab-demo-r1",
			"containerlab": "demo",
			"mgmt_ipv4":    "172.20.0.2/24",
			"image":        "nokia/srlinux:latest",
		},
	})
	merged := mergeContainer(nil, first, "start")
	if merged.Network.IPv4Address != "172.20.0.2" || merged.Network.IPv4Prefix != 24 {
		t.Fatalf("first merge lost the address: %+v", merged.Network)
	}

	// A later event without addresses must not blank them.
	second := containerFromEvent(Event{
		Type:       eventTypeContainer,
		Action:     "update",
		ActorID:    "abc123456789ffff",
		Attributes: Attributes{"status": "Up 5 minutes"},
	})
	merged2 := mergeContainer(&merged, second, "update")
	if merged2.Network.IPv4Address != "172.20.0.2" {
		t.Errorf("address not sticky: %+v", merged2.Network)
	}
	if merged2.Image != "nokia/srlinux:latest" {
		t.Errorf("image not retained: %q", merged2.Image)
	}
	if merged2.Status != "Up 5 minutes" {
		t.Errorf("status not updated: %q", merged2.Status)
	}

	// A newer address replaces the older one.
	third := containerFromEvent(Event{
		Type:       eventTypeContainer,
		Action:     "update",
		ActorID:    "abc123456789ffff",
		Attributes: Attributes{"mgmt_ipv4": "172.20.0.7/24"},
	})
	merged3 := mergeContainer(&merged2, third, "update")
	if merged3.Network.IPv4Address != "172.20.0.7" {
		t.Errorf("address not replaced: %+v", merged3.Network)
	}
}

func TestMergeContainerLabPlaceholder(t *testing.T) {
	existing := ContainerRecord{ShortID: "abc123456789", Lab: "demo"}
	inc := ContainerRecord{ShortID: "abc123456789", Lab: UnknownLab}
	out := mergeContainer(&existing, inc, "update")
	if out.Lab != "demo" {
		t.Errorf("placeholder lab overwrote real one: %q", out.Lab)
	}

	out = mergeContainer(nil, ContainerRecord{ShortID: "abc123456789"}, "create")
	if out.Lab != UnknownLab {
		t.Errorf("missing lab did not default: %q", out.Lab)
	}
}

func TestContainerFromEventLabels(t *testing.T) {
	rec := containerFromEvent(Event{
		Type:    eventTypeContainer,
		Action:  "create",
		ActorID: "abc123456789",
		Attributes: Attributes{
			"name":           "clab-demo-r1",
			"containerlab":   "demo",
			"clab-node-name": "r1",
			"clab-topo-file": "/labs/demo.clab.yml",
			"state":          "Created",
			"pid":            float64(4242),
		},
	})
	if rec.Labels[labelNodeName] != "r1" {
		t.Errorf("node-name label missing: %v", rec.Labels)
	}
	if rec.TopoFile != "/labs/demo.clab.yml" {
		t.Errorf("topo file: %q", rec.TopoFile)
	}
	if rec.State != StateCreated {
		t.Errorf("state not lowered: %q", rec.State)
	}
	if rec.Pid != 4242 {
		t.Errorf("pid: %d", rec.Pid)
	}
	if rec.NodeName() != "r1" {
		t.Errorf("NodeName = %q", rec.NodeName())
	}
}
