// Package daemon launches, probes, and stops configured node daemons.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/anchornet/anchor-commander/internal/config"
	"github.com/anchornet/anchor-commander/internal/run"
)

const (
	// probeTimeout bounds the lightweight CLI probe
	probeTimeout = 10 * time.Second
	// launchGrace is how long a freshly spawned daemon is watched for an
	// immediate non-zero exit
	launchGrace = 750 * time.Millisecond
)

// Handle is a running daemon attached to a profile. At most one handle
// exists per profile within a session.
type Handle struct {
	Profile config.Profile
	// Proc is the spawned process; nil when the session attached to a
	// daemon that was already running.
	Proc *os.Process
	// Attached is true when the daemon was found running rather than
	// launched by this session.
	Attached bool
}

// LaunchError reports a daemon that could not be started.
type LaunchError struct {
	Name   string
	Reason string
	Err    error
}

func (e *LaunchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Name, e.Reason)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ProbeError carries the CLI's own error text from a failed probe.
type ProbeError struct {
	Output string
}

func (e *ProbeError) Error() string { return e.Output }

// CLIArgs builds the argument list for a CLI invocation against the
// profile's daemon: the data directory flag, the configured extra CLI
// arguments, then the command itself.
func CLIArgs(p config.Profile, command ...string) []string {
	args := make([]string, 0, 1+len(p.CLIArgs)+len(command))
	args = append(args, "-datadir="+p.DataDir)
	args = append(args, p.CLIArgs...)
	args = append(args, command...)
	return args
}

// Probe issues the lightweight getinfo CLI call. A nil error means the
// daemon is up and serving RPC; the returned map is the parsed response
// body (used by the version checker for the local version field).
func Probe(ctx context.Context, p config.Profile) (map[string]any, error) {
	cli, err := run.LookBinary(p.CLIPath)
	if err != nil {
		return nil, err
	}

	r := run.New(probeTimeout)
	res := r.Run(ctx, cli, CLIArgs(p, "getinfo"))
	if !res.Success {
		return nil, &ProbeError{Output: strings.TrimSpace(res.Output())}
	}

	info := make(map[string]any)
	if err := json.Unmarshal([]byte(res.Stdout), &info); err != nil {
		// Daemon answered with something non-JSON; it is up regardless.
		info["raw"] = strings.TrimSpace(res.Stdout)
	}
	return info, nil
}

// Preflight verifies both binaries resolve and the data directory exists,
// creating the data directory when absent. It returns the resolved daemon
// and CLI paths.
func Preflight(p config.Profile) (daemonBin, cliBin string, err error) {
	cliBin, err = run.LookBinary(p.CLIPath)
	if err != nil {
		return "", "", &LaunchError{Name: p.Name, Reason: "CLI binary not usable", Err: err}
	}
	daemonBin, err = run.LookBinary(p.DaemonPath)
	if err != nil {
		return "", "", &LaunchError{Name: p.Name, Reason: "daemon binary not usable", Err: err}
	}
	if _, statErr := os.Stat(p.DataDir); statErr != nil {
		if mkErr := os.MkdirAll(p.DataDir, 0755); mkErr != nil {
			return "", "", &LaunchError{Name: p.Name, Reason: "cannot create data_dir", Err: mkErr}
		}
	}
	return daemonBin, cliBin, nil
}

// Launch spawns the daemon binary detached with its configured arguments
// and -daemon flag, output discarded. A non-zero exit inside the grace
// window is a launch failure; a zero exit means the process daemonized.
func Launch(ctx context.Context, p config.Profile) (*Handle, error) {
	daemonBin, _, err := Preflight(p)
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, 2+len(p.DaemonArgs))
	args = append(args, "-datadir="+p.DataDir)
	args = append(args, p.DaemonArgs...)
	args = append(args, "-daemon")

	cmd := exec.Command(daemonBin, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Name: p.Name, Reason: "failed to start daemon", Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() != 0 {
			return nil, &LaunchError{
				Name:   p.Name,
				Reason: fmt.Sprintf("daemon exited immediately with status %d", exitErr.ExitCode()),
				Err:    err,
			}
		}
		// Exit 0 inside the window: the parent forked and daemonized.
		return &Handle{Profile: p}, nil
	case <-time.After(launchGrace):
		// Still running; reap in the background so it never zombies.
		proc := cmd.Process
		go func() { <-done }()
		return &Handle{Profile: p, Proc: proc}, nil
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return nil, &LaunchError{Name: p.Name, Reason: "launch canceled", Err: ctx.Err()}
	}
}

// Attach probes the daemon and, when it answers, returns a handle without
// spawning anything. This makes the already-running race explicit: a
// daemon that is mid-startup and not yet RPC-ready probes as down and the
// caller falls through to Launch, which is safe because bitcoind-lineage
// daemons refuse to double-start on a locked data directory.
func Attach(ctx context.Context, p config.Profile) (*Handle, map[string]any, error) {
	info, err := Probe(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	return &Handle{Profile: p, Attached: true}, info, nil
}

// Stop asks the daemon to shut down through its CLI stop command, falling
// back to an interrupt signal for processes this session spawned.
func (h *Handle) Stop(ctx context.Context) error {
	cli, err := run.LookBinary(h.Profile.CLIPath)
	if err == nil {
		res := run.New(probeTimeout).Run(ctx, cli, CLIArgs(h.Profile, "stop"))
		if res.Success {
			return nil
		}
	}
	if h.Proc != nil {
		return h.Proc.Signal(os.Interrupt)
	}
	return fmt.Errorf("[%s] stop command failed and no process handle to signal", h.Profile.Name)
}
