// Package monitor watches a daemon's startup until it is ready for RPC.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anchornet/anchor-commander/internal/config"
	"github.com/anchornet/anchor-commander/internal/daemon"
	"github.com/anchornet/anchor-commander/internal/logs"
)

// State is the startup monitor's view of the daemon.
type State int

const (
	// StateWaiting means no milestone has been observed yet
	StateWaiting State = iota
	// StateMilestoneSeen means an initialization milestone was matched
	StateMilestoneSeen
	// StateReady means the daemon answers RPC or logged the ready marker
	StateReady
	// StateTimedOut means the bounded wait elapsed without readiness
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateMilestoneSeen:
		return "milestone"
	case StateReady:
		return "ready"
	case StateTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// DefaultMilestones are the initialization stages bitcoind-lineage
// daemons log, in order. The last entry is the ready marker.
var DefaultMilestones = []string{
	"Loading block index",
	"Loading wallet",
	"Done loading",
}

// Event is a single observation surfaced to the caller.
type Event struct {
	State State
	// Milestone is set for StateMilestoneSeen and the log-driven
	// StateReady event
	Milestone string
	// Line carries probe error text or a filtered debug.log line
	Line string
}

// StartupTimeoutError reports a daemon that never became ready.
type StartupTimeoutError struct {
	Name    string
	Elapsed time.Duration
}

func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("[%s] daemon not ready after %s", e.Name, e.Elapsed.Round(time.Second))
}

// Options tunes a Watch call.
type Options struct {
	// Interval between polls (default 1s)
	Interval time.Duration
	// MaxWait bounds the whole watch (default 30s)
	MaxWait time.Duration
	// Milestones overrides DefaultMilestones
	Milestones []string
	// Notify receives every event; nil disables reporting
	Notify func(Event)
	// Probe overrides the CLI probe, used by tests
	Probe func(context.Context) (map[string]any, error)
}

const (
	defaultInterval = time.Second
	defaultMaxWait  = 30 * time.Second
)

// Watch polls the daemon with a fixed interval until it is ready: either
// the lightweight CLI probe succeeds or the ready marker shows up in
// debug.log. Milestones are surfaced in order, each at most once. The
// bounded wait elapsing returns a *StartupTimeoutError; the caller may
// warn the user and proceed anyway.
func Watch(ctx context.Context, p config.Profile, opts Options) error {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = defaultMaxWait
	}
	milestones := opts.Milestones
	if len(milestones) == 0 {
		milestones = DefaultMilestones
	}
	notify := opts.Notify
	if notify == nil {
		notify = func(Event) {}
	}
	probe := opts.Probe
	if probe == nil {
		probe = func(ctx context.Context) (map[string]any, error) {
			return daemon.Probe(ctx, p)
		}
	}

	tail := logs.NewTailer(p.DataDir)
	tail.SkipExisting()

	deadline := time.Now().Add(opts.MaxWait)
	next := 0
	lastErr := ""

	for {
		if _, err := probe(ctx); err == nil {
			notify(Event{State: StateReady})
			return nil
		} else {
			msg := prettyProbeError(err)
			if msg != lastErr {
				notify(Event{State: StateWaiting, Line: msg})
				lastErr = msg
			}
		}

		lines, _ := tail.Next()
		for _, line := range lines {
			matched := matchMilestone(milestones, next, line)
			if matched < 0 {
				notify(Event{State: StateWaiting, Line: line})
				continue
			}
			next = matched + 1
			if next == len(milestones) {
				notify(Event{State: StateReady, Milestone: milestones[matched], Line: line})
				return nil
			}
			notify(Event{State: StateMilestoneSeen, Milestone: milestones[matched], Line: line})
		}

		if time.Now().After(deadline) {
			notify(Event{State: StateTimedOut})
			return &StartupTimeoutError{Name: p.Name, Elapsed: opts.MaxWait}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.Interval):
		}
	}
}

// matchMilestone returns the index of the first not-yet-seen milestone
// the line contains, or -1. Scanning forward from next keeps reporting
// ordered even when the daemon skips a stage.
func matchMilestone(milestones []string, next int, line string) int {
	for j := next; j < len(milestones); j++ {
		if strings.Contains(line, milestones[j]) {
			return j
		}
	}
	return -1
}

// prettyProbeError rewrites the CLI's connection refusal into something
// an operator can read while the RPC server is still coming up.
func prettyProbeError(err error) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, "error message:"); idx >= 0 {
		msg = strings.TrimSpace(msg[idx+len("error message:"):])
	}
	if strings.Contains(msg, "couldn't connect to server") {
		return "starting RPC server"
	}
	return msg
}
