// Package update checks GitHub for a newer release.
package update

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/mcuadros/go-version"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/tdh8316/watson/internal/httpx"
)

const LatestReleaseURL = "https://api.github.com/repos/tdh8316/watson/releases/latest"

type Release struct {
	Version string
	URL     string
	Newer   bool
}

// Check fetches the latest release from releaseURL (LatestReleaseURL when
// empty) and compares it with current.
func Check(ctx context.Context, client httpx.Doer, releaseURL, current string) (Release, error) {
	if releaseURL == "" {
		releaseURL = LatestReleaseURL
	}
	req, err := httpx.NewRequest(ctx, http.MethodGet, releaseURL, nil, httpx.DefaultUserAgent)
	if err != nil {
		return Release{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return Release{}, errors.Wrap(err, "fetch latest release")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Release{}, errors.Errorf("fetch latest release: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Release{}, errors.Wrap(err, "read latest release")
	}

	tag := gjson.GetBytes(body, "tag_name").String()
	if tag == "" {
		return Release{}, errors.New("latest release has no tag_name")
	}
	rel := Release{
		Version: strings.TrimPrefix(tag, "v"),
		URL:     gjson.GetBytes(body, "html_url").String(),
	}
	rel.Newer = IsNewer(rel.Version, current)
	return rel, nil
}

// IsNewer reports whether latest is a higher version than current.
// A development build ("dev" or empty) is never outdated.
func IsNewer(latest, current string) bool {
	current = strings.TrimPrefix(current, "v")
	if current == "" || current == "dev" {
		return false
	}
	return version.Compare(version.Normalize(strings.TrimPrefix(latest, "v")), version.Normalize(current), ">")
}
