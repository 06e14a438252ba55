package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Feed lines can carry large attribute bags; give the scanner headroom.
const maxFeedLine = 1 << 20

var (
	errTornDown   = errors.New("event feed torn down")
	errShutDown   = errors.New("aggregator is shut down")
	errSuperseded = errors.New("event feed superseded by a different scope")
)

// feedProcess is the state of one running feed subprocess.
type feedProcess struct {
	gen      uint64
	scope    string
	cmd      *exec.Cmd
	resolver *loadResolver
}

// EnsureFeed makes sure a feed for the given scope is running and blocks
// until its initial backlog is drained (or confirmed empty). It is
// idempotent: with a feed already initialized for the same scope it returns
// immediately; with one still loading it awaits the same in-flight signal.
// A different scope forces a full teardown-and-restart.
func (a *Aggregator) EnsureFeed(ctx context.Context, scope string) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return errShutDown
	}
	if p := a.proc; p != nil && p.scope == scope {
		r := p.resolver
		a.mu.Unlock()
		return r.wait(ctx)
	}
	a.teardownLocked(errSuperseded)

	p, err := a.startFeedLocked(scope)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.mu.Unlock()
	return p.resolver.wait(ctx)
}

// startFeedLocked spawns the feed subprocess and wires its pipes.
// Caller holds a.mu with no process running.
func (a *Aggregator) startFeedLocked(scope string) (*feedProcess, error) {
	// A fresh feed replays the full initial state; start from a clean model.
	a.clearStateLocked()
	a.gen++
	gen := a.gen

	args := []string{"events", "--format", "json", "--initial-state"}
	if a.opts.IncludeStats {
		args = append(args, "--stats")
	}
	if scope != "" {
		args = append(args, "--name", scope)
	}

	cmd := exec.Command(a.opts.Binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("feed stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("feed stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", a.opts.Binary, err)
	}
	slog.Debug("event feed started", "binary", a.opts.Binary, "scope", scope, "pid", cmd.Process.Pid)

	p := &feedProcess{
		gen:      gen,
		scope:    scope,
		cmd:      cmd,
		resolver: newLoadResolver(a.sched, a.opts.IdleTimeout, a.opts.FallbackTimeout),
	}
	a.proc = p

	go a.readFeed(gen, stdout)
	go a.readFeedErrors(stderr)
	go a.waitFeed(gen, p)
	return p, nil
}

// readFeed pumps stdout lines into the merge pipeline, one at a time.
func (a *Aggregator) readFeed(gen uint64, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxFeedLine)
	for scanner.Scan() {
		a.handleLine(gen, scanner.Bytes())
	}
	// Stream end is handled by waitFeed; a scanner error here only means
	// the pipe closed under us.
}

// readFeedErrors surfaces subprocess stderr as warnings.
func (a *Aggregator) readFeedErrors(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			slog.Warn("event feed stderr", "line", line)
		}
	}
}

// waitFeed reaps the subprocess and routes its exit to the failure path
// (when still loading) or the teardown/restart path.
func (a *Aggregator) waitFeed(gen uint64, p *feedProcess) {
	waitErr := p.cmd.Wait()

	a.mu.Lock()
	if a.proc == nil || a.proc.gen != gen {
		// Torn down on purpose; the kill caused this exit.
		a.mu.Unlock()
		return
	}
	a.proc = nil
	a.gen++
	closed := a.closed
	a.mu.Unlock()

	if p.resolver.isPending() {
		p.resolver.reject(fmt.Errorf("event feed exited before initial load completed: %s", exitReason(waitErr)))
		return
	}

	slog.Warn("event feed exited after initial load", "reason", exitReason(waitErr))
	if a.opts.RestartOnExit && !closed {
		go a.restartFeed(p.scope)
	}
}

// restartFeed re-ensures a dead feed with exponential backoff. Gives up
// silently once the aggregator is shut down.
func (a *Aggregator) restartFeed(scope string) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxElapsedTime = 2 * time.Minute

	err := backoff.Retry(func() error {
		a.mu.Lock()
		closed := a.closed
		a.mu.Unlock()
		if closed {
			return backoff.Permanent(errShutDown)
		}
		return a.EnsureFeed(context.Background(), scope)
	}, bo)
	if err != nil && !errors.Is(err, errShutDown) {
		slog.Error("event feed restart failed", "scope", scope, "err", err)
	}
}

// teardownLocked stops the current feed, if any: the resolver settles (so
// nobody awaits forever), pending timers die, and the subprocess is killed.
// Bumping gen fences every callback still in flight. Caller holds a.mu.
func (a *Aggregator) teardownLocked(reason error) {
	p := a.proc
	a.proc = nil
	a.gen++
	if p == nil {
		return
	}
	if p.resolver.isPending() {
		p.resolver.reject(reason)
	}
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	a.notif.cancel()
}

// exitReason renders a subprocess exit for diagnostics.
func exitReason(waitErr error) string {
	if waitErr == nil {
		return "exit status 0"
	}
	var exit *exec.ExitError
	if errors.As(waitErr, &exit) {
		return exit.String()
	}
	return waitErr.Error()
}
