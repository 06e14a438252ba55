package feed

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// fakeFeedBinary writes an executable shell script that stands in for the
// containerlab binary. The script body runs after the standard argument
// handling the feed supervisor passes.
func fakeFeedBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script feed binary requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fakeclab")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newSupervisedAggregator(t *testing.T, binary string) *Aggregator {
	t.Helper()
	a := New(Options{
		Binary:          binary,
		IdleTimeout:     50 * time.Millisecond,
		FallbackTimeout: 2 * time.Second,
		Debounce:        10 * time.Millisecond,
	})
	t.Cleanup(a.Shutdown)
	return a
}

func TestEnsureFeedDrainsBacklog(t *testing.T) {
	binary := fakeFeedBinary(t, `
echo '{"type":"container","action":"create","actor_id":"abc123456789","attributes":{"name":"clab-demo-r1","containerlab":"demo"}}'
echo '{"type":"container","action":"start","actor_id":"abc123456789","attributes":{"status":"Up 1 second","state":"running"}}'
sleep 60`)
	a := newSupervisedAggregator(t, binary)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.EnsureFeed(ctx, ""); err != nil {
		t.Fatalf("EnsureFeed: %v", err)
	}

	group, ok := a.GroupedContainers()["demo"]
	if !ok || len(group.Containers) != 1 {
		t.Fatalf("backlog not applied: %v", a.GroupedContainers())
	}
	if group.Containers[0].State != StateRunning {
		t.Errorf("state = %q", group.Containers[0].State)
	}

	// Same scope again: already initialized, returns at once.
	if err := a.EnsureFeed(ctx, ""); err != nil {
		t.Errorf("second EnsureFeed: %v", err)
	}
}

func TestEnsureFeedRejectsPrematureExit(t *testing.T) {
	binary := fakeFeedBinary(t, `exit 3`)
	a := newSupervisedAggregator(t, binary)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.EnsureFeed(ctx, ""); err == nil {
		t.Fatal("expected an initial-load failure")
	}
}

func TestEnsureFeedSilentFeedResolvesEmpty(t *testing.T) {
	binary := fakeFeedBinary(t, `sleep 60`)
	a := New(Options{
		Binary:          binary,
		IdleTimeout:     50 * time.Millisecond,
		FallbackTimeout: 200 * time.Millisecond,
		Debounce:        10 * time.Millisecond,
	})
	t.Cleanup(a.Shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.EnsureFeed(ctx, ""); err != nil {
		t.Fatalf("EnsureFeed: %v", err)
	}
	if labs := a.GroupedContainers(); len(labs) != 0 {
		t.Errorf("silent feed produced state: %v", labs)
	}
}

func TestEnsureFeedAfterShutdown(t *testing.T) {
	binary := fakeFeedBinary(t, `sleep 60`)
	a := newSupervisedAggregator(t, binary)
	a.Shutdown()

	if err := a.EnsureFeed(context.Background(), ""); err == nil {
		t.Fatal("expected EnsureFeed to fail after Shutdown")
	}
}

func TestEnsureFeedScopeChangeClearsState(t *testing.T) {
	binary := fakeFeedBinary(t, `
case "$*" in
*"--name demo"*)
  echo '{"type":"container","action":"start","actor_id":"abc123456789","attributes":{"name":"clab-demo-r1","containerlab":"demo","state":"running"}}' ;;
*)
  echo '{"type":"container","action":"start","actor_id":"def123456789","attributes":{"name":"clab-other-r1","containerlab":"other","state":"running"}}' ;;
esac
sleep 60`)
	a := newSupervisedAggregator(t, binary)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := a.EnsureFeed(ctx, ""); err != nil {
		t.Fatalf("EnsureFeed(all): %v", err)
	}
	if _, ok := a.GroupedContainers()["other"]; !ok {
		t.Fatalf("unscoped feed missing: %v", a.GroupedContainers())
	}

	if err := a.EnsureFeed(ctx, "demo"); err != nil {
		t.Fatalf("EnsureFeed(demo): %v", err)
	}
	labs := a.GroupedContainers()
	if _, ok := labs["other"]; ok {
		t.Error("scope change did not clear prior state")
	}
	if _, ok := labs["demo"]; !ok {
		t.Errorf("scoped feed missing: %v", labs)
	}
}
