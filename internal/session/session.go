// Package session drives the interactive daemon menu and command relay.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	shellwords "github.com/mattn/go-shellwords"

	"github.com/anchornet/anchor-commander/internal/config"
	"github.com/anchornet/anchor-commander/internal/daemon"
	"github.com/anchornet/anchor-commander/internal/format"
	"github.com/anchornet/anchor-commander/internal/monitor"
	"github.com/anchornet/anchor-commander/internal/run"
	"github.com/anchornet/anchor-commander/internal/update"
)

// ExitKeyword ends the relay loop and, from the menu, the program.
const ExitKeyword = "exit"

// IsExit reports whether an input line is the reserved exit keyword,
// matched case-insensitively. Exit lines never reach the CLI binary.
func IsExit(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), ExitKeyword)
}

// Session is one interactive run: a menu over the configured daemons and
// a relay loop per selection. A profile gets at most one handle.
type Session struct {
	Profiles map[string]config.Profile
	Updates  *update.Client
	Format   *format.Formatter
	Monitor  monitor.Options
	Out      io.Writer
	Log      *slog.Logger

	handles map[string]*daemon.Handle
}

// New creates a session over the loaded profiles.
func New(profiles map[string]config.Profile, f *format.Formatter) *Session {
	return &Session{
		Profiles: profiles,
		Updates:  update.NewClient(),
		Format:   f,
		Out:      os.Stdout,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		handles:  make(map[string]*daemon.Handle),
	}
}

// Run shows the daemon menu and services selections until the user exits.
func (s *Session) Run(ctx context.Context) error {
	for {
		key, quit, err := s.selectDaemon()
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
		s.runDaemon(ctx, s.Profiles[key])
	}
}

// selectDaemon presents the numbered menu. quit is true on the exit entry
// or an interrupt/EOF from the prompt.
func (s *Session) selectDaemon() (key string, quit bool, err error) {
	keys := config.SortedKeys(s.Profiles)
	items := make([]string, 0, len(keys)+1)
	for i, k := range keys {
		items = append(items, fmt.Sprintf("%d. %s", i+1, s.Profiles[k].Name))
	}
	items = append(items, "Exit")

	sel := promptui.Select{
		Label: "Select a daemon to interact with",
		Items: items,
		Size:  len(items),
	}
	idx, _, err := sel.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return "", true, nil
		}
		return "", false, fmt.Errorf("menu failed: %w", err)
	}
	if idx == len(keys) {
		return "", true, nil
	}
	return keys[idx], false, nil
}

// runDaemon takes one menu selection through attach-or-launch, startup
// monitoring, the version banner, and the relay loop. Launch failures
// return the user to the menu.
func (s *Session) runDaemon(ctx context.Context, p config.Profile) {
	info, err := s.ensureRunning(ctx, p)
	if err != nil {
		var launchErr *daemon.LaunchError
		if errors.As(err, &launchErr) {
			fmt.Fprintln(s.Out, format.TextDanger.Render(launchErr.Error()))
			var execErr *run.ExecError
			if errors.As(launchErr.Err, &execErr) {
				for _, hint := range execErr.Hints() {
					fmt.Fprintf(s.Out, "[!] %s\n", hint)
				}
			}
			return
		}
		var timeoutErr *monitor.StartupTimeoutError
		if errors.As(err, &timeoutErr) {
			fmt.Fprintln(s.Out, format.TextWarning.Render(timeoutErr.Error()+" - proceeding anyway, commands may fail"))
		} else {
			fmt.Fprintln(s.Out, format.TextDanger.Render(err.Error()))
			return
		}
	}

	s.printVersionBanner(ctx, p, info)
	s.relayLoop(ctx, p)
}

// ensureRunning attaches to a running daemon or launches it and waits for
// readiness. The returned map is the probe body when one is available.
func (s *Session) ensureRunning(ctx context.Context, p config.Profile) (map[string]any, error) {
	if _, ok := s.handles[p.Name]; ok {
		// Re-selected from the menu; the handle from earlier still
		// stands unless the daemon went away in the meantime.
		if info, err := daemon.Probe(ctx, p); err == nil {
			return info, nil
		}
		delete(s.handles, p.Name)
	}

	if h, info, err := daemon.Attach(ctx, p); err == nil {
		s.handles[p.Name] = h
		fmt.Fprintf(s.Out, "%s daemon is already running\n", format.TextAccent.Render("["+p.Name+"]"))
		return info, nil
	}

	fmt.Fprintf(s.Out, "%s daemon not reachable, launching...\n", format.TextAccent.Render("["+p.Name+"]"))
	h, err := daemon.Launch(ctx, p)
	if err != nil {
		return nil, err
	}
	s.handles[p.Name] = h
	s.Log.Debug("daemon launched", "name", p.Name, "attached", h.Attached)

	opts := s.Monitor
	prevNotify := opts.Notify
	opts.Notify = func(ev monitor.Event) {
		s.printEvent(p, ev)
		if prevNotify != nil {
			prevNotify(ev)
		}
	}
	if err := monitor.Watch(ctx, p, opts); err != nil {
		return nil, err
	}

	info, probeErr := daemon.Probe(ctx, p)
	if probeErr != nil {
		info = map[string]any{}
	}
	return info, nil
}

func (s *Session) printEvent(p config.Profile, ev monitor.Event) {
	switch ev.State {
	case monitor.StateReady:
		fmt.Fprintf(s.Out, "%s\n", format.TextSuccess.Render(
			fmt.Sprintf("[%s] daemon initialized - ready for RPC commands", p.Name)))
	case monitor.StateMilestoneSeen:
		fmt.Fprintf(s.Out, "%s %s\n", format.TextAccent.Render("["+p.Name+"]"), format.TextBright.Render(ev.Milestone))
	case monitor.StateWaiting:
		if ev.Line != "" {
			fmt.Fprintf(s.Out, "%s %s\n", format.TextMuted.Render("["+p.Name+" startup]"), ev.Line)
		}
	}
}

// printVersionBanner runs the best-effort version check. Failures warn
// and never block the session.
func (s *Session) printVersionBanner(ctx context.Context, p config.Profile, info map[string]any) {
	if !p.VersionCheckEnabled() {
		return
	}
	res := s.Updates.Check(ctx, p, info)
	switch {
	case res.Warning != "":
		fmt.Fprintf(s.Out, "%s\n", format.TextWarning.Render("Version check: "+res.Warning))
	case res.Match:
		fmt.Fprintf(s.Out, "%s\n", format.TextSuccess.Render("Version check: up to date ("+res.Local+")"))
	default:
		fmt.Fprintf(s.Out, "%s\n", format.TextWarning.Render("Version check: version mismatch"))
		fmt.Fprintf(s.Out, "  %s %s\n", format.TextMuted.Render("remote version:"), res.Remote)
		fmt.Fprintf(s.Out, "  %s  %s\n", format.TextMuted.Render("local version:"), format.TextDanger.Render(res.Local))
		if res.DownloadURL != "" {
			fmt.Fprintf(s.Out, "  %s %s\n", format.TextMuted.Render("download:"), res.DownloadURL)
		}
	}
}

// relayLoop reads free-form commands and forwards them to the CLI binary
// until the exit keyword.
func (s *Session) relayLoop(ctx context.Context, p config.Profile) {
	for {
		prompt := promptui.Prompt{
			Label: fmt.Sprintf("[%s] command ('%s' to quit)", strings.ToUpper(p.Name), ExitKeyword),
		}
		line, err := prompt.Run()
		if err != nil {
			// Interrupt or EOF ends the loop like the exit keyword.
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if IsExit(line) {
			return
		}

		out, err := s.Relay(ctx, p, line)
		if err != nil {
			fmt.Fprintln(s.Out, format.TextDanger.Render(err.Error()))
			continue
		}
		fmt.Fprintln(s.Out, out)
	}
}

// Relay tokenizes one command line, prepends the profile's data-dir and
// CLI arguments, invokes the CLI binary untimed, and formats the output.
// A failing command is not an error: the daemon's own rejection text is
// returned as ordinary output.
func (s *Session) Relay(ctx context.Context, p config.Profile, line string) (string, error) {
	words, err := shellwords.Parse(line)
	if err != nil {
		return "", fmt.Errorf("cannot parse command: %w", err)
	}
	return s.RelayArgs(ctx, p, words)
}

// RelayArgs forwards already-tokenized arguments to the CLI binary.
func (s *Session) RelayArgs(ctx context.Context, p config.Profile, words []string) (string, error) {
	if len(words) == 0 {
		return "", nil
	}

	cli, err := run.LookBinary(p.CLIPath)
	if err != nil {
		return "", err
	}

	r := run.New(0) // the relay waits however long the CLI takes
	res := r.Run(ctx, cli, daemon.CLIArgs(p, words...))
	s.Log.Debug("relayed command", "name", p.Name, "exit", res.ExitCode, "duration", res.Duration)

	return s.Format.Format(strings.TrimRight(res.Output(), "\n")), nil
}
