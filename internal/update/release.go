// Package update checks daemon versions against remote release feeds.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/anchornet/anchor-commander/internal/config"
)

// feedTimeout bounds the release-feed request. The check is best-effort
// and must never hold up the interactive session.
const feedTimeout = 5 * time.Second

// Release is the slice of a release-feed response this tool consumes.
type Release struct {
	// Version is the raw value of the configured version field
	Version string
	// HTMLURL is the release page, offered as the download link
	HTMLURL string
}

// Result is the outcome of one version check.
type Result struct {
	// Remote is the normalized feed version
	Remote string
	// Local is the normalized daemon version
	Local string
	// Match is true when both versions are known and equal
	Match bool
	// DownloadURL is set on mismatch when the feed carries a release page
	DownloadURL string
	// Warning is set when the check degraded instead of completing
	Warning string
}

// Client fetches release feeds.
type Client struct {
	HTTPClient *http.Client
}

// NewClient creates a release-feed client with the default timeout.
func NewClient() *Client {
	return &Client{HTTPClient: &http.Client{Timeout: feedTimeout}}
}

// FetchLatest GETs the release feed and extracts the configured version
// field plus the release page URL.
func (c *Client) FetchLatest(ctx context.Context, url, versionField string) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "anchorctl")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch release feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("release feed error (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var feed map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to parse release feed: %w", err)
	}

	rel := &Release{}
	if v, ok := feed[versionField]; ok {
		rel.Version = Stringify(v)
	}
	if u, ok := feed["html_url"].(string); ok {
		rel.HTMLURL = u
	}
	if rel.Version == "" {
		return nil, fmt.Errorf("release feed has no %q field", versionField)
	}
	return rel, nil
}

// Check compares the daemon's reported version against its release feed.
// localInfo is the parsed probe response; the local version comes from
// the profile's configured cli_field. Check never fails: every error path
// degrades to a Result with a Warning.
func (c *Client) Check(ctx context.Context, p config.Profile, localInfo map[string]any) *Result {
	if !p.VersionCheckEnabled() {
		return &Result{Warning: "version check not configured"}
	}

	res := &Result{}
	if v, ok := localInfo[p.VersionCheck.CLIField]; ok {
		res.Local = Normalize(Stringify(v))
	}
	if res.Local == "" {
		res.Warning = fmt.Sprintf("daemon info has no %q field", p.VersionCheck.CLIField)
		return res
	}

	rel, err := c.FetchLatest(ctx, p.VersionCheck.GithubAPI, p.VersionCheck.VersionField)
	if err != nil {
		res.Warning = err.Error()
		return res
	}

	res.Remote = Normalize(rel.Version)
	if res.Remote == "" {
		res.Warning = "release feed version is empty"
		return res
	}

	// Opaque string comparison after normalization; a mismatch in either
	// direction gets the download link.
	if res.Remote == res.Local {
		res.Match = true
	} else {
		res.DownloadURL = rel.HTMLURL
	}
	return res
}
