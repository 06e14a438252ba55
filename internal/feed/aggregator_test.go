package feed

import (
	"fmt"
	"testing"
	"time"

	"labwatch/internal/fake"
)

// newTestAggregator builds an aggregator on fake time with a synthetic feed
// process installed, so tests can push lines through handleLine without a
// subprocess.
func newTestAggregator(t *testing.T) (*Aggregator, *fake.Clock, *fake.Scheduler) {
	t.Helper()
	clock := fake.NewClock(time.UnixMilli(1_000_000))
	sched := fake.NewScheduler(clock)

	a := New(Options{
		Binary:    "containerlab",
		Clock:     clock,
		Scheduler: sched,
	})
	a.gen = 1
	a.proc = &feedProcess{
		gen:      1,
		resolver: newLoadResolver(sched, a.opts.IdleTimeout, a.opts.FallbackTimeout),
	}
	t.Cleanup(a.Shutdown)
	return a, clock, sched
}

func (a *Aggregator) push(t *testing.T, line string) {
	t.Helper()
	a.handleLine(1, []byte(line))
}

func containerLine(id, action string, attrs string) string {
	return fmt.Sprintf(`{"type":"container","action":%q,"actor_id":%q,"attributes":{%s}}`, action, id, attrs)
}

func TestAggregatorLifecycle(t *testing.T) {
	a, _, _ := newTestAggregator(t)
	const id = "abc123456789"

	a.push(t, containerLine(id, "create",
		`"name":"clab-demo-r1","containerlab":"demo","image":"nokia/srlinux","clab-topo-file":"/labs/demo.clab.yml"`))
	a.push(t, containerLine(id, "start", `"status":"Up 1 second","mgmt_ipv4":"172.20.0.2/24"`))

	labs := a.GroupedContainers()
	group, ok := labs["demo"]
	if !ok {
		t.Fatalf("lab missing: %v", labs)
	}
	if group.TopoFile != "/labs/demo.clab.yml" {
		t.Errorf("topo file: %q", group.TopoFile)
	}
	if len(group.Containers) != 1 {
		t.Fatalf("containers: %d", len(group.Containers))
	}
	c := group.Containers[0]
	if c.State != StateRunning || c.Network.IPv4Address != "172.20.0.2" {
		t.Errorf("unexpected record: %+v", c)
	}

	// stop retains the record; destroy removes it.
	a.push(t, containerLine(id, "die", `"status":"Exited (0) 1 second ago"`))
	group = a.GroupedContainers()["demo"]
	if len(group.Containers) != 1 || group.Containers[0].State != StateExited {
		t.Fatalf("stopped container not retained: %+v", group.Containers)
	}
	if group.Containers[0].Status != "Exited (0) 1 second ago" {
		t.Errorf("status: %q", group.Containers[0].Status)
	}

	a.push(t, containerLine(id, "destroy", ``))
	if labs := a.GroupedContainers(); len(labs) != 0 {
		t.Errorf("destroyed container still present: %v", labs)
	}
}

func TestAggregatorExecIgnored(t *testing.T) {
	a, _, _ := newTestAggregator(t)
	a.push(t, containerLine("abc123456789", "exec_create: sh -c ls", `"name":"clab-demo-r1","containerlab":"demo"`))
	a.push(t, containerLine("abc123456789", "exec_start: sh", ``))
	if labs := a.GroupedContainers(); len(labs) != 0 {
		t.Errorf("exec events created a record: %v", labs)
	}
}

func TestAggregatorStateListener(t *testing.T) {
	a, _, _ := newTestAggregator(t)
	const id = "abc123456789"

	type transition struct{ id, state string }
	var got []transition
	unsub := a.OnContainerStateChanged(func(shortID, state string) {
		got = append(got, transition{shortID, state})
	})
	defer unsub()

	a.push(t, containerLine(id, "create", `"name":"clab-demo-r1","containerlab":"demo"`))
	a.push(t, containerLine(id, "start", `"status":"Up 1 second"`))
	// Re-delivering the same event must not fire the listener again.
	a.push(t, containerLine(id, "start", `"status":"Up 1 second"`))
	a.push(t, containerLine(id, "destroy", ``))

	want := []transition{{id, StateCreated}, {id, StateRunning}, {id, StateRemoved}}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAggregatorDebounce(t *testing.T) {
	a, _, sched := newTestAggregator(t)

	fired := 0
	unsub := a.OnDataChanged(func() { fired++ })
	defer unsub()

	// A burst of changes within the debounce window coalesces to one callback.
	for i := 0; i < 5; i++ {
		a.push(t, containerLine(fmt.Sprintf("c%011d", i), "create",
			`"name":"clab-demo-r1","containerlab":"demo"`))
	}
	if fired != 0 {
		t.Fatalf("fired before debounce elapsed: %d", fired)
	}
	sched.Advance(a.opts.Debounce)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}

	// The next change starts a fresh window.
	a.push(t, containerLine("d00000000001", "create", `"containerlab":"demo"`))
	sched.Advance(a.opts.Debounce)
	if fired != 2 {
		t.Errorf("fired = %d, want 2", fired)
	}
}

func TestAggregatorIdempotentLineNoNotify(t *testing.T) {
	a, _, sched := newTestAggregator(t)
	const id = "abc123456789"

	line := containerLine(id, "create", `"name":"clab-demo-r1","containerlab":"demo"`)
	a.push(t, line)
	sched.Advance(a.opts.Debounce)

	fired := 0
	unsub := a.OnDataChanged(func() { fired++ })
	defer unsub()

	a.push(t, line)
	sched.Advance(a.opts.Debounce)
	if fired != 0 {
		t.Errorf("idempotent line fired %d notifications", fired)
	}
}

func TestAggregatorMalformedLineDropped(t *testing.T) {
	a, _, _ := newTestAggregator(t)
	a.push(t, `{"type":"container",`)
	a.push(t, "   ")
	a.push(t, containerLine("abc123456789", "create", `"containerlab":"demo"`))
	if len(a.GroupedContainers()) != 1 {
		t.Error("pipeline did not survive malformed lines")
	}
}

func TestAggregatorStaleGenerationFenced(t *testing.T) {
	a, _, _ := newTestAggregator(t)
	a.handleLine(99, []byte(containerLine("abc123456789", "create", `"containerlab":"demo"`)))
	if len(a.GroupedContainers()) != 0 {
		t.Error("stale-generation line was applied")
	}
}

func TestAggregatorInterfaceDropOnExit(t *testing.T) {
	a, _, _ := newTestAggregator(t)
	const id = "abc123456789"

	a.push(t, containerLine(id, "start", `"name":"clab-demo-r1","containerlab":"demo","status":"Up 1 second"`))
	a.push(t, fmt.Sprintf(
		`{"type":"interface","action":"update","actor_id":%q,"attributes":{"name":"e1-1","state":"up","mtu":9500,"ifindex":12}}`, id))

	if recs := a.InterfaceSnapshot(id, ""); len(recs) != 1 {
		t.Fatalf("interfaces = %v", recs)
	}
	v := a.InterfaceVersion(id)

	a.push(t, containerLine(id, "die", `"status":"Exited (0) 1 second ago"`))
	if recs := a.InterfaceSnapshot(id, ""); recs != nil {
		t.Errorf("interfaces survived exit: %v", recs)
	}
	if a.InterfaceVersion(id) <= v {
		t.Error("version not bumped on interface drop")
	}
}

func TestInterfaceSnapshotByDisplayName(t *testing.T) {
	a, _, _ := newTestAggregator(t)
	const id = "abc123456789"

	a.push(t, containerLine(id, "start", `"name":"clab-demo-r1","containerlab":"demo"`))
	a.push(t, fmt.Sprintf(
		`{"type":"interface","action":"update","actor_id":%q,"attributes":{"name":"e1-1","state":"up"}}`, id))

	if recs := a.InterfaceSnapshot("", "clab-demo-r1"); len(recs) != 1 {
		t.Errorf("name fallback failed: %v", recs)
	}
	if recs := a.InterfaceSnapshot("", "nonesuch"); recs != nil {
		t.Errorf("unknown name returned %v", recs)
	}
}
