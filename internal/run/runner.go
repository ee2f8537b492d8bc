// Package run executes daemon and CLI binaries as subprocesses.
package run

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Result contains the outcome of running a command.
type Result struct {
	// Command is the command line that was run
	Command string
	// ExitCode is the exit code of the command
	ExitCode int
	// Stdout is the captured standard output
	Stdout string
	// Stderr is the captured standard error
	Stderr string
	// Success indicates if the command succeeded (exit code 0)
	Success bool
	// Duration is how long the command took to run
	Duration time.Duration
	// Err contains any error that occurred starting or waiting
	Err error
}

// Runner executes commands and captures their output.
type Runner struct {
	// Timeout bounds a single command; zero means no timeout. The
	// interactive relay runs untimed, probes use a short timeout.
	Timeout time.Duration
	// WorkDir is the working directory for commands
	WorkDir string
}

// New creates a Runner with the given timeout.
func New(timeout time.Duration) *Runner {
	return &Runner{Timeout: timeout}
}

// Run executes a command and returns the result. The command's stdout and
// stderr are captured verbatim; callers decide what to surface.
func (r *Runner) Run(ctx context.Context, binary string, args []string) *Result {
	result := &Result{
		Command: binary + " " + strings.Join(args, " "),
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	// Without this, Wait blocks past the deadline when a killed shell
	// leaves children holding the output pipes.
	cmd.WaitDelay = 100 * time.Millisecond
	if r.WorkDir != "" {
		cmd.Dir = r.WorkDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result.Duration = time.Since(start)

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if err != nil {
		result.Err = err
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		return result
	}

	result.ExitCode = 0
	result.Success = true
	return result
}

// Output returns stdout when the command succeeded and stderr otherwise,
// which is how daemon CLI binaries report both results and errors.
func (res *Result) Output() string {
	if res.Success {
		return res.Stdout
	}
	if res.Stderr != "" {
		return res.Stderr
	}
	if res.Err != nil {
		return res.Err.Error()
	}
	return res.Stdout
}

// ExecError explains why a configured binary cannot be executed.
type ExecError struct {
	// Path is the configured binary path
	Path string
	// NotFound is true when nothing exists at the path (or in PATH)
	NotFound bool
	// NotExecutable is true when the file exists but lacks the exec bit
	NotExecutable bool
}

func (e *ExecError) Error() string {
	switch {
	case e.NotFound:
		return fmt.Sprintf("cannot execute %s: file not found", e.Path)
	case e.NotExecutable:
		return fmt.Sprintf("cannot execute %s: file exists but is not executable (chmod +x)", e.Path)
	default:
		return fmt.Sprintf("cannot execute %s", e.Path)
	}
}

// Hints returns operator-facing tips for fixing the problem.
func (e *ExecError) Hints() []string {
	var hints []string
	if e.NotExecutable {
		hints = append(hints, "file exists but is not executable (chmod +x)")
	}
	if IsFUSEPath(e.Path) {
		hints = append(hints, "this looks like a GVFS/FUSE mount; executing binaries there is often blocked (noexec) - copy the binary to a local filesystem")
	}
	hints = append(hints, "use absolute paths, or put the binary in PATH and configure just the program name")
	return hints
}

// LookBinary resolves a configured binary path to an absolute executable.
// Bare names are looked up in PATH; paths are checked for existence and
// the executable bit. Returns an *ExecError when the binary cannot run.
func LookBinary(path string) (string, error) {
	if path == "" {
		return "", &ExecError{Path: path, NotFound: true}
	}

	if filepath.Base(path) == path {
		found, err := exec.LookPath(path)
		if err != nil {
			return "", &ExecError{Path: path, NotFound: true}
		}
		return found, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", &ExecError{Path: abs, NotFound: true}
	}
	if info.Mode()&0111 == 0 {
		return "", &ExecError{Path: abs, NotExecutable: true}
	}
	return abs, nil
}

// IsFUSEPath reports whether a path sits on a GVFS/FUSE mount, a common
// source of noexec execution failures on Linux desktops.
func IsFUSEPath(path string) bool {
	return strings.HasPrefix(path, "/run/user/") && strings.Contains(path, "/gvfs/")
}
