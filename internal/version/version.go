// Package version carries the build identity of hwclaim and checks GitHub
// for newer releases.
package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Build information, set with -ldflags "-X".
//
//nolint:gochecknoglobals // set by the linker
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Release repository.
const (
	Owner = "mrz1836"
	Repo  = "hwclaim"
)

const (
	// DefaultBaseURL is the GitHub REST API root.
	DefaultBaseURL = "https://api.github.com"

	defaultTimeout   = 15 * time.Second
	maxErrorBodySize = 1024
	maxBodySize      = 64 * 1024
)

// ErrGitHubAPIFailed is returned for a non-200 answer from GitHub.
var ErrGitHubAPIFailed = errors.New("GitHub API request failed")

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String renders the info on one line.
func (i Info) String() string {
	s := "hwclaim " + i.Version
	if i.Commit != "" {
		s += " (" + i.Commit + ")"
	}
	return s + " " + i.Platform
}

// UserAgent is sent with every outgoing HTTP request.
func UserAgent() string {
	return fmt.Sprintf("hwclaim/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}

// Release is the part of a GitHub release we read.
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
}

// Checker asks GitHub for the latest release.
type Checker struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewChecker creates a checker against the public GitHub API.
func NewChecker() *Checker {
	return &Checker{
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Latest fetches the latest published release.
func (c *Checker) Latest(ctx context.Context) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", strings.TrimRight(c.BaseURL, "/"), Owner, Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent())
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.HTTPClient.Do(req) //nolint:gosec // URL is built from the fixed GitHub API root
	if err != nil {
		return nil, fmt.Errorf("fetching release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, fmt.Errorf("%w: status %d: %s", ErrGitHubAPIFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var r Release
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&r); err != nil {
		return nil, fmt.Errorf("decoding release: %w", err)
	}
	return &r, nil
}

// Compare returns 1, 0 or -1 as a is newer than, equal to or older than b.
// Development builds sort before every release.
func Compare(a, b string) int {
	pa, devA := parse(a)
	pb, devB := parse(b)
	switch {
	case devA && devB:
		return 0
	case devA:
		return -1
	case devB:
		return 1
	}
	for i := range pa {
		if pa[i] != pb[i] {
			if pa[i] > pb[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

// IsNewer reports whether latest is newer than current.
func IsNewer(current, latest string) bool {
	return Compare(latest, current) > 0
}

// parse reads major.minor.patch, ignoring a leading "v" and any
// pre-release or build suffix. Anything without a leading number is a
// development build.
func parse(v string) ([3]int, bool) {
	var out [3]int
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	parts := strings.Split(v, ".")
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return out, i == 0
		}
		out[i] = n
	}
	return out, false
}
