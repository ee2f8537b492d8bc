// Package config loads daemon profiles from a daemons.json or daemons.yaml file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "daemons.json"

// VersionCheck describes how to compare a daemon's version against a
// remote release feed.
type VersionCheck struct {
	GithubAPI    string `json:"github_api" yaml:"github_api"`
	VersionField string `json:"version_field" yaml:"version_field"`
	CLIField     string `json:"cli_field" yaml:"cli_field"`
}

// Profile describes one configured daemon: where its binaries and data
// live and how to invoke them. Profiles are immutable after Load.
type Profile struct {
	Name         string        `json:"name" yaml:"name"`
	DaemonPath   string        `json:"daemon_path" yaml:"daemon_path"`
	CLIPath      string        `json:"cli_path" yaml:"cli_path"`
	DataDir      string        `json:"data_dir" yaml:"data_dir"`
	DaemonArgs   []string      `json:"daemon_args" yaml:"daemon_args"`
	CLIArgs      []string      `json:"cli_args" yaml:"cli_args"`
	VersionCheck *VersionCheck `json:"version_check,omitempty" yaml:"version_check,omitempty"`
}

// VersionCheckEnabled reports whether the profile carries enough
// version_check configuration to run a check.
func (p Profile) VersionCheckEnabled() bool {
	return p.VersionCheck != nil && p.VersionCheck.GithubAPI != "" &&
		p.VersionCheck.VersionField != "" && p.VersionCheck.CLIField != ""
}

// ConfigError reports a missing, malformed, or incomplete config file.
type ConfigError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Path, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load parses the config file at path into a map of daemon key to Profile.
// Files ending in .yaml or .yml are parsed as YAML, everything else as
// JSON. Binary and data paths are expanded: ~ to the user home, relative
// paths against the config file's directory.
func Load(path string) (map[string]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Reason: "cannot read file", Err: err}
	}

	profiles := make(map[string]Profile)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &profiles); err != nil {
			return nil, &ConfigError{Path: path, Reason: "malformed YAML", Err: err}
		}
	default:
		if err := json.Unmarshal(data, &profiles); err != nil {
			return nil, &ConfigError{Path: path, Reason: "malformed JSON", Err: err}
		}
	}

	if len(profiles) == 0 {
		return nil, &ConfigError{Path: path, Reason: "no daemons configured"}
	}

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		base = filepath.Dir(path)
	}

	for key, p := range profiles {
		if err := validate(key, p); err != nil {
			return nil, &ConfigError{Path: path, Reason: err.Error()}
		}
		p.DaemonPath = ExpandBinaryPath(base, p.DaemonPath)
		p.CLIPath = ExpandBinaryPath(base, p.CLIPath)
		p.DataDir = ExpandPath(base, p.DataDir)
		profiles[key] = p
	}

	return profiles, nil
}

func validate(key string, p Profile) error {
	required := []struct {
		field, value string
	}{
		{"name", p.Name},
		{"daemon_path", p.DaemonPath},
		{"cli_path", p.CLIPath},
		{"data_dir", p.DataDir},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("daemon %q: missing required field %q", key, r.field)
		}
	}
	if p.VersionCheck != nil && !p.VersionCheckEnabled() {
		return fmt.Errorf("daemon %q: version_check needs github_api, version_field and cli_field", key)
	}
	return nil
}

// ExpandPath resolves a configured path. ~ expands to the user home and
// relative paths resolve against base (the config file's directory), not
// the process working directory.
func ExpandPath(base, path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

// ExpandBinaryPath resolves a configured binary path like ExpandPath,
// except bare program names are returned untouched so they can be looked
// up in PATH at launch time.
func ExpandBinaryPath(base, path string) string {
	if path != "" && filepath.Base(path) == path && !strings.HasPrefix(path, "~") {
		return path
	}
	return ExpandPath(base, path)
}

// SortedKeys returns the daemon keys in menu order: numeric keys first in
// numeric order, then the rest lexicographically.
func SortedKeys(profiles map[string]Profile) []string {
	keys := make([]string, 0, len(profiles))
	for k := range profiles {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, errI := strconv.Atoi(keys[i])
		nj, errJ := strconv.Atoi(keys[j])
		switch {
		case errI == nil && errJ == nil:
			return ni < nj
		case errI == nil:
			return true
		case errJ == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}
