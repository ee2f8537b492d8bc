// Package main provides the CLI entry point for anchor-commander.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anchornet/anchor-commander/internal/config"
	"github.com/anchornet/anchor-commander/internal/daemon"
	"github.com/anchornet/anchor-commander/internal/format"
	"github.com/anchornet/anchor-commander/internal/logs"
	"github.com/anchornet/anchor-commander/internal/monitor"
	"github.com/anchornet/anchor-commander/internal/session"
	"github.com/anchornet/anchor-commander/internal/update"
)

var (
	// Global flags
	configPath string
	jsonOutput bool
	verbose    bool
	noColor    bool

	// Root command
	rootCmd = &cobra.Command{
		Use:   "anchorctl",
		Short: "Anchor Commander - daemon wrangling for cryptocurrency nodes",
		Long: `Anchor Commander wraps cryptocurrency daemon binaries: it launches or
attaches to configured daemons, watches their startup logs, checks their
versions against a release feed, and relays CLI commands with
pretty-printed JSON output.

Start the interactive session:
  anchorctl

Or use one-shot commands:
  anchorctl list
  anchorctl start btc
  anchorctl exec btc -- getblockcount`,
		RunE: runInteractive,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List configured daemons",
		RunE:  runList,
	}

	startCmd = &cobra.Command{
		Use:   "start <daemon>",
		Short: "Launch a daemon and wait for readiness",
		Args:  cobra.ExactArgs(1),
		RunE:  runStart,
	}

	stopCmd = &cobra.Command{
		Use:   "stop <daemon>",
		Short: "Ask a daemon to shut down",
		Args:  cobra.ExactArgs(1),
		RunE:  runStop,
	}

	statusCmd = &cobra.Command{
		Use:   "status <daemon>",
		Short: "Probe a daemon and print its info",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}

	execCmd = &cobra.Command{
		Use:   "exec <daemon> -- <command...>",
		Short: "Relay a single CLI command without the interactive loop",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runExec,
	}

	checkCmd = &cobra.Command{
		Use:   "check <daemon>",
		Short: "Compare the daemon version against its release feed",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}

	logsCmd = &cobra.Command{
		Use:   "logs <daemon>",
		Short: "Show the daemon's debug.log",
		Args:  cobra.ExactArgs(1),
		RunE:  runLogs,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Daemon config file (JSON or YAML)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	startCmd.Flags().Duration("wait", 0, "Override the startup wait (default 30s)")

	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().IntP("lines", "n", 50, "Number of lines to show")

	rootCmd.AddCommand(listCmd, startCmd, stopCmd, statusCmd, execCmd, checkCmd, logsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the slog logger controlled by --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newFormatter builds the output formatter honoring --no-color.
func newFormatter() *format.Formatter {
	f := format.New()
	if noColor {
		f.Color = false
	}
	return f
}

// loadProfiles loads the config file; a config failure is fatal.
func loadProfiles() (map[string]config.Profile, error) {
	return config.Load(configPath)
}

// selectProfile resolves a command-line daemon argument: a config key or
// a daemon name, either way case-insensitively for names.
func selectProfile(profiles map[string]config.Profile, arg string) (config.Profile, error) {
	if p, ok := profiles[arg]; ok {
		return p, nil
	}
	for _, p := range profiles {
		if strings.EqualFold(p.Name, arg) {
			return p, nil
		}
	}
	return config.Profile{}, fmt.Errorf("no daemon %q in %s", arg, configPath)
}

func runInteractive(cmd *cobra.Command, args []string) error {
	profiles, err := loadProfiles()
	if err != nil {
		return err
	}

	s := session.New(profiles, newFormatter())
	s.Log = newLogger()
	return s.Run(cmd.Context())
}

func runList(cmd *cobra.Command, args []string) error {
	profiles, err := loadProfiles()
	if err != nil {
		return err
	}
	keys := config.SortedKeys(profiles)

	if jsonOutput {
		out := make([]config.Profile, 0, len(keys))
		for _, k := range keys {
			out = append(out, profiles[k])
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("%-6s %-14s %-30s %s\n", "KEY", "NAME", "DAEMON", "DATA DIR")
	fmt.Println(strings.Repeat("-", 70))
	for _, k := range keys {
		p := profiles[k]
		fmt.Printf("%-6s %-14s %-30s %s\n", k, p.Name, p.DaemonPath, p.DataDir)
	}
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	profiles, err := loadProfiles()
	if err != nil {
		return err
	}
	p, err := selectProfile(profiles, args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if _, _, err := daemon.Attach(ctx, p); err == nil {
		fmt.Printf("[%s] daemon is already running\n", p.Name)
		return nil
	}

	if _, err := daemon.Launch(ctx, p); err != nil {
		return err
	}

	wait, _ := cmd.Flags().GetDuration("wait")
	opts := monitor.Options{
		MaxWait: wait,
		Notify: func(ev monitor.Event) {
			switch ev.State {
			case monitor.StateReady:
				fmt.Printf("[%s] daemon initialized - ready for RPC commands\n", p.Name)
			case monitor.StateMilestoneSeen:
				fmt.Printf("[%s] %s\n", p.Name, ev.Milestone)
			case monitor.StateWaiting:
				if ev.Line != "" {
					fmt.Printf("[%s startup] %s\n", p.Name, ev.Line)
				}
			}
		},
	}
	if err := monitor.Watch(ctx, p, opts); err != nil {
		return err
	}
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	profiles, err := loadProfiles()
	if err != nil {
		return err
	}
	p, err := selectProfile(profiles, args[0])
	if err != nil {
		return err
	}

	h := &daemon.Handle{Profile: p, Attached: true}
	if err := h.Stop(cmd.Context()); err != nil {
		return err
	}
	fmt.Printf("[%s] stop requested\n", p.Name)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	profiles, err := loadProfiles()
	if err != nil {
		return err
	}
	p, err := selectProfile(profiles, args[0])
	if err != nil {
		return err
	}

	info, err := daemon.Probe(cmd.Context(), p)
	if err != nil {
		return fmt.Errorf("[%s] daemon not reachable: %w", p.Name, err)
	}

	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	fmt.Println(newFormatter().Format(string(data)))
	return nil
}

func runExec(cmd *cobra.Command, args []string) error {
	profiles, err := loadProfiles()
	if err != nil {
		return err
	}
	p, err := selectProfile(profiles, args[0])
	if err != nil {
		return err
	}

	s := session.New(profiles, newFormatter())
	s.Log = newLogger()
	out, err := s.RelayArgs(cmd.Context(), p, args[1:])
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	profiles, err := loadProfiles()
	if err != nil {
		return err
	}
	p, err := selectProfile(profiles, args[0])
	if err != nil {
		return err
	}
	if !p.VersionCheckEnabled() {
		return fmt.Errorf("[%s] version_check is not configured", p.Name)
	}

	ctx := cmd.Context()
	info, err := daemon.Probe(ctx, p)
	if err != nil {
		return fmt.Errorf("[%s] daemon not reachable: %w", p.Name, err)
	}

	res := update.NewClient().Check(ctx, p, info)
	if jsonOutput {
		data, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	switch {
	case res.Warning != "":
		fmt.Println(format.TextWarning.Render("Version check: " + res.Warning))
	case res.Match:
		fmt.Println(format.TextSuccess.Render("Version check: up to date (" + res.Local + ")"))
	default:
		fmt.Println(format.TextWarning.Render("Version check: version mismatch"))
		fmt.Printf("  remote version: %s\n", res.Remote)
		fmt.Printf("  local version:  %s\n", res.Local)
		if res.DownloadURL != "" {
			fmt.Printf("  download: %s\n", res.DownloadURL)
		}
	}
	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	profiles, err := loadProfiles()
	if err != nil {
		return err
	}
	p, err := selectProfile(profiles, args[0])
	if err != nil {
		return err
	}

	follow, _ := cmd.Flags().GetBool("follow")
	lines, _ := cmd.Flags().GetInt("lines")

	src := logs.NewFileSource(logs.LogPath(p.DataDir), follow, lines)
	defer src.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ch, err := src.Lines(ctx)
	if err != nil {
		return err
	}
	for line := range ch {
		fmt.Println(line)
	}
	return nil
}
