package wp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultRegistryBaseURL = "https://api.wordpress.org"
	defaultReleaseBaseURL  = "https://wordpress.org"
)

// HTTPRegistry talks to the public plugin registry and core release API.
type HTTPRegistry struct {
	baseURL     string
	releaseBase string
	client      *http.Client
	logger      zerolog.Logger
}

// NewHTTPRegistry creates a registry client. Empty baseURL and releaseBase
// select the public defaults.
func NewHTTPRegistry(baseURL, releaseBase string) *HTTPRegistry {
	if baseURL == "" {
		baseURL = defaultRegistryBaseURL
	}
	if releaseBase == "" {
		releaseBase = defaultReleaseBaseURL
	}
	return &HTTPRegistry{
		baseURL:     baseURL,
		releaseBase: releaseBase,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      log.With().Str("component", "wp.registry").Logger(),
	}
}

// LookupPlugin queries the registry by slug.
func (r *HTTPRegistry) LookupPlugin(ctx context.Context, slug string) (*RegistryPlugin, error) {
	endpoint := fmt.Sprintf("%s/plugins/info/1.0/%s.json", r.baseURL, url.PathEscape(slug))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build registry request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, slug)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: registry returned %d", ErrUnavailable, resp.StatusCode)
	}

	var info RegistryPlugin
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode registry response: %w", err)
	}

	// The registry answers unknown slugs with a JSON null body.
	if info.Slug == "" && info.Version == "" {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, slug)
	}

	r.logger.Debug().Str("slug", slug).Str("version", info.Version).Msg("Registry lookup succeeded")
	return &info, nil
}

// LatestCoreVersion resolves the newest stable core release offered by the
// version-check endpoint.
func (r *HTTPRegistry) LatestCoreVersion(ctx context.Context) (string, error) {
	endpoint := r.baseURL + "/core/version-check/1.7/"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build version-check request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: version check returned %d", ErrUnavailable, resp.StatusCode)
	}

	var payload struct {
		Offers []struct {
			Current string `json:"current"`
		} `json:"offers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode version-check response: %w", err)
	}
	if len(payload.Offers) == 0 {
		return "", fmt.Errorf("%w: version check returned no offers", ErrUnavailable)
	}

	// Offers are not guaranteed ordered; pick the highest semver.
	var best *semver.Version
	for _, offer := range payload.Offers {
		v, err := semver.NewVersion(offer.Current)
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	if best == nil {
		return "", fmt.Errorf("%w: no parsable core versions offered", ErrUnavailable)
	}
	return best.Original(), nil
}

// CoreArchiveURL returns the release archive URL for a core version.
func (r *HTTPRegistry) CoreArchiveURL(version string) string {
	return fmt.Sprintf("%s/wordpress-%s.zip", r.releaseBase, version)
}
