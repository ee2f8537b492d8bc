package session

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anchornet/anchor-commander/internal/config"
	"github.com/anchornet/anchor-commander/internal/format"
	"github.com/anchornet/anchor-commander/internal/monitor"
)

func TestIsExit(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"exit", true},
		{"EXIT", true},
		{"Exit", true},
		{"  exit  ", true},
		{"exit now", false},
		{"quit", false},
		{"getinfo", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := IsExit(tt.input); got != tt.want {
				t.Errorf("IsExit(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// echoCLI writes a stub CLI that prints its arguments one per line.
func echoCLI(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "test-cli")
	script := "#!/bin/sh\nfor a in \"$@\"; do echo \"$a\"; done\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write stub CLI: %v", err)
	}
	return path
}

func testSession(t *testing.T, p config.Profile) *Session {
	t.Helper()
	return New(map[string]config.Profile{"1": p}, &format.Formatter{Color: false})
}

func TestRelayPrependsConfiguredArgs(t *testing.T) {
	dir := t.TempDir()
	p := config.Profile{
		Name:    "test",
		CLIPath: echoCLI(t, dir),
		DataDir: "/var/lib/test",
		CLIArgs: []string{"-testnet"},
	}

	s := testSession(t, p)
	out, err := s.Relay(context.Background(), p, "getblock abc 2")
	if err != nil {
		t.Fatalf("Relay() error = %v", err)
	}

	want := []string{"-datadir=/var/lib/test", "-testnet", "getblock", "abc", "2"}
	got := strings.Split(out, "\n")
	if len(got) != len(want) {
		t.Fatalf("Relay() args = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRelayQuotedArguments(t *testing.T) {
	dir := t.TempDir()
	p := config.Profile{
		Name:    "test",
		CLIPath: echoCLI(t, dir),
		DataDir: "/var/lib/test",
	}

	s := testSession(t, p)
	out, err := s.Relay(context.Background(), p, `sendtoaddress addr1 0.5 "a two word comment"`)
	if err != nil {
		t.Fatalf("Relay() error = %v", err)
	}

	if !strings.Contains(out, "a two word comment") {
		t.Errorf("Relay() lost quoted argument: %q", out)
	}
}

func TestRelayFormatsJSONOutput(t *testing.T) {
	dir := t.TempDir()
	cli := filepath.Join(dir, "test-cli")
	script := "#!/bin/sh\necho '{\"blocks\":42,\"connections\":8}'\n"
	if err := os.WriteFile(cli, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write stub CLI: %v", err)
	}

	p := config.Profile{Name: "test", CLIPath: cli, DataDir: dir}
	s := testSession(t, p)

	out, err := s.Relay(context.Background(), p, "getinfo")
	if err != nil {
		t.Fatalf("Relay() error = %v", err)
	}

	if !strings.Contains(out, "\n    \"blocks\": 42") {
		t.Errorf("Relay() output not re-indented: %q", out)
	}
}

func TestRelayPassesThroughCLIFailure(t *testing.T) {
	dir := t.TempDir()
	cli := filepath.Join(dir, "test-cli")
	script := "#!/bin/sh\necho \"error: unknown command\" >&2\nexit 1\n"
	if err := os.WriteFile(cli, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write stub CLI: %v", err)
	}

	p := config.Profile{Name: "test", CLIPath: cli, DataDir: dir}
	s := testSession(t, p)

	// A failing subcommand is ordinary output, not a tool error.
	out, err := s.Relay(context.Background(), p, "bogus")
	if err != nil {
		t.Fatalf("Relay() error = %v, want CLI stderr as output", err)
	}
	if !strings.Contains(out, "error: unknown command") {
		t.Errorf("Relay() output = %q, want daemon error text", out)
	}
}

func TestRelayMissingCLI(t *testing.T) {
	p := config.Profile{
		Name:    "test",
		CLIPath: filepath.Join(t.TempDir(), "missing-cli"),
		DataDir: "/var/lib/test",
	}

	s := testSession(t, p)
	if _, err := s.Relay(context.Background(), p, "getinfo"); err == nil {
		t.Error("Relay() error = nil for missing CLI binary")
	}
}

func TestRelayUnbalancedQuote(t *testing.T) {
	dir := t.TempDir()
	p := config.Profile{Name: "test", CLIPath: echoCLI(t, dir), DataDir: dir}

	s := testSession(t, p)
	if _, err := s.Relay(context.Background(), p, `getinfo "unterminated`); err == nil {
		t.Error("Relay() error = nil for unbalanced quote")
	}
}

func TestPrintEvent(t *testing.T) {
	p := config.Profile{Name: "Anchor"}

	tests := []struct {
		name string
		ev   monitor.Event
		want []string
	}{
		{"milestone", monitor.Event{State: monitor.StateMilestoneSeen, Milestone: "Loading wallet"},
			[]string{"[Anchor]", "Loading wallet"}},
		{"waiting", monitor.Event{State: monitor.StateWaiting, Line: "starting RPC server"},
			[]string{"[Anchor startup]", "starting RPC server"}},
		{"ready", monitor.Event{State: monitor.StateReady},
			[]string{"[Anchor]", "ready for RPC commands"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			s := testSession(t, p)
			s.Out = &buf

			s.printEvent(p, tt.ev)
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("printEvent() output = %q, missing %q", buf.String(), want)
				}
			}
		})
	}
}

func TestPrintEventSilentWaitingWithoutLine(t *testing.T) {
	var buf bytes.Buffer
	p := config.Profile{Name: "Anchor"}
	s := testSession(t, p)
	s.Out = &buf

	s.printEvent(p, monitor.Event{State: monitor.StateWaiting})
	if buf.Len() != 0 {
		t.Errorf("printEvent() output = %q, want nothing for a lineless waiting event", buf.String())
	}
}

func TestRelayEmptyLine(t *testing.T) {
	dir := t.TempDir()
	p := config.Profile{Name: "test", CLIPath: echoCLI(t, dir), DataDir: dir}

	s := testSession(t, p)
	out, err := s.Relay(context.Background(), p, "   ")
	if err != nil {
		t.Fatalf("Relay() error = %v", err)
	}
	if out != "" {
		t.Errorf("Relay() on blank line = %q, want empty", out)
	}
}
