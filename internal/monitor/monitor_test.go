package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/anchornet/anchor-commander/internal/config"
	"github.com/anchornet/anchor-commander/internal/logs"
)

var errDown = errors.New("error: couldn't connect to server")

func testProfile(t *testing.T) config.Profile {
	t.Helper()
	return config.Profile{Name: "test", DataDir: t.TempDir()}
}

// appendLog writes to the daemon log. It reports failure with Errorf so
// it is safe to call from timer goroutines.
func appendLog(t *testing.T, dataDir, content string) {
	t.Helper()
	path := logs.LogPath(dataDir)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		t.Errorf("failed to open log: %v", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Errorf("failed to append log: %v", err)
	}
}

func TestWatchMilestonesToReady(t *testing.T) {
	p := testProfile(t)
	// The monitor skips log history, so the milestones have to land
	// after the watch starts.
	timer := time.AfterFunc(30*time.Millisecond, func() {
		appendLog(t, p.DataDir, ""+
			"2024-01-15 10:30:00 Loading block index...\n"+
			"2024-01-15 10:30:01 Loading wallet...\n"+
			"2024-01-15 10:30:02 Done loading\n")
	})
	defer timer.Stop()

	var milestones []string
	var ready bool
	err := Watch(context.Background(), p, Options{
		Interval: 10 * time.Millisecond,
		MaxWait:  2 * time.Second,
		Probe: func(context.Context) (map[string]any, error) {
			return nil, errDown
		},
		Notify: func(ev Event) {
			switch ev.State {
			case StateMilestoneSeen:
				milestones = append(milestones, ev.Milestone)
			case StateReady:
				ready = true
				if ev.Milestone != "" {
					milestones = append(milestones, ev.Milestone)
				}
			}
		},
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if !ready {
		t.Error("Watch() never reported StateReady")
	}
	want := []string{"Loading block index", "Loading wallet", "Done loading"}
	if !reflect.DeepEqual(milestones, want) {
		t.Errorf("milestones = %v, want %v", milestones, want)
	}
}

func TestWatchMilestonesReportedOnce(t *testing.T) {
	p := testProfile(t)
	timer := time.AfterFunc(30*time.Millisecond, func() {
		appendLog(t, p.DataDir, ""+
			"2024-01-15 10:30:00 Loading block index...\n"+
			"2024-01-15 10:30:01 init: Loading block index again\n"+
			"2024-01-15 10:30:02 Done loading\n")
	})
	defer timer.Stop()

	count := 0
	err := Watch(context.Background(), p, Options{
		Interval: 10 * time.Millisecond,
		MaxWait:  2 * time.Second,
		Probe: func(context.Context) (map[string]any, error) {
			return nil, errDown
		},
		Notify: func(ev Event) {
			if ev.Milestone == "Loading block index" {
				count++
			}
		},
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if count != 1 {
		t.Errorf("milestone reported %d times, want 1", count)
	}
}

func TestWatchProbeSuccess(t *testing.T) {
	p := testProfile(t)

	calls := 0
	err := Watch(context.Background(), p, Options{
		Interval: 10 * time.Millisecond,
		MaxWait:  2 * time.Second,
		Probe: func(context.Context) (map[string]any, error) {
			calls++
			if calls < 3 {
				return nil, errDown
			}
			return map[string]any{"version": 1.0}, nil
		},
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if calls < 3 {
		t.Errorf("probe called %d times, want at least 3", calls)
	}
}

func TestWatchTimeout(t *testing.T) {
	p := testProfile(t)
	appendLog(t, p.DataDir, "2024-01-15 10:30:00 Verifying blocks...\n")

	var timedOut bool
	err := Watch(context.Background(), p, Options{
		Interval: 10 * time.Millisecond,
		MaxWait:  100 * time.Millisecond,
		Probe: func(context.Context) (map[string]any, error) {
			return nil, errDown
		},
		Notify: func(ev Event) {
			if ev.State == StateTimedOut {
				timedOut = true
			}
		},
	})

	var toErr *StartupTimeoutError
	if !errors.As(err, &toErr) {
		t.Fatalf("Watch() error = %v, want *StartupTimeoutError", err)
	}
	if !timedOut {
		t.Error("Watch() never notified StateTimedOut")
	}
}

func TestWatchDuplicateProbeErrors(t *testing.T) {
	p := testProfile(t)

	var waiting []string
	_ = Watch(context.Background(), p, Options{
		Interval: 10 * time.Millisecond,
		MaxWait:  150 * time.Millisecond,
		Probe: func(context.Context) (map[string]any, error) {
			return nil, errDown
		},
		Notify: func(ev Event) {
			if ev.State == StateWaiting && ev.Line != "" {
				waiting = append(waiting, ev.Line)
			}
		},
	})

	if len(waiting) != 1 {
		t.Fatalf("got %d waiting lines %v, want the error reported once", len(waiting), waiting)
	}
	if waiting[0] != "starting RPC server" {
		t.Errorf("waiting line = %q, want %q", waiting[0], "starting RPC server")
	}
}

func TestWatchSkipsExistingLog(t *testing.T) {
	p := testProfile(t)
	// History from a previous run must not count as milestones.
	appendLog(t, p.DataDir, "2024-01-14 09:00:00 Done loading\n")

	err := Watch(context.Background(), p, Options{
		Interval: 10 * time.Millisecond,
		MaxWait:  100 * time.Millisecond,
		Probe: func(context.Context) (map[string]any, error) {
			return nil, errDown
		},
	})

	var toErr *StartupTimeoutError
	if !errors.As(err, &toErr) {
		t.Fatalf("Watch() error = %v, want timeout (old log must be skipped)", err)
	}
}

func TestPrettyProbeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"connection refused", errDown, "starting RPC server"},
		{"rpc wrapper", errors.New("error code: -28 error message: Loading block index..."), "Loading block index..."},
		{"other", errors.New("unknown wallet"), "unknown wallet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := prettyProbeError(tt.err); got != tt.want {
				t.Errorf("prettyProbeError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateWaiting, "waiting"},
		{StateMilestoneSeen, "milestone"},
		{StateReady, "ready"},
		{StateTimedOut, "timed-out"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestWatchWritesNothingOutsideDataDir(t *testing.T) {
	p := testProfile(t)
	_ = Watch(context.Background(), p, Options{
		Interval: 10 * time.Millisecond,
		MaxWait:  50 * time.Millisecond,
		Probe: func(context.Context) (map[string]any, error) {
			return nil, errDown
		},
	})

	entries, err := os.ReadDir(p.DataDir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		t.Errorf("unexpected file in data dir: %s", filepath.Join(p.DataDir, e.Name()))
	}
}
