package wp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sitemedic/sitemedic/pkg/fsutil"
)

// HTTPNetwork is the authenticated premium network client. All endpoints
// require the site token; without one every operation fails with
// ErrNotAuthenticated.
type HTTPNetwork struct {
	baseURL string
	token   string
	host    Host
	client  *http.Client
	logger  zerolog.Logger

	mu     sync.RWMutex
	cached map[int]Project
}

// NewHTTPNetwork creates a premium network client installing into host's
// plugins directory.
func NewHTTPNetwork(baseURL, token string, host Host) *HTTPNetwork {
	return &HTTPNetwork{
		baseURL: baseURL,
		token:   token,
		host:    host,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  log.With().Str("component", "wp.network").Logger(),
	}
}

// Authenticated reports whether site credentials are configured.
func (n *HTTPNetwork) Authenticated() bool {
	return n.token != "" && n.baseURL != ""
}

// Catalog fetches the authenticated project catalog and refreshes the cache.
func (n *HTTPNetwork) Catalog(ctx context.Context) (map[int]Project, error) {
	if !n.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	var payload struct {
		Projects []Project `json:"projects"`
	}
	if err := n.getJSON(ctx, n.baseURL+"/api/v1/projects", &payload); err != nil {
		return nil, err
	}

	catalog := make(map[int]Project, len(payload.Projects))
	for _, p := range payload.Projects {
		catalog[p.ID] = p
	}

	n.mu.Lock()
	n.cached = catalog
	n.mu.Unlock()

	return catalog, nil
}

// CachedCatalog returns the last fetched catalog without a network round trip.
func (n *HTTPNetwork) CachedCatalog() map[int]Project {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make(map[int]Project, len(n.cached))
	for id, p := range n.cached {
		out[id] = p
	}
	return out
}

// InstallPlugin downloads a project archive from the authenticated install
// endpoint and unpacks it into the plugins directory.
func (n *HTTPNetwork) InstallPlugin(ctx context.Context, projectID int) error {
	if !n.Authenticated() {
		return ErrNotAuthenticated
	}

	endpoint := fmt.Sprintf("%s/api/v1/projects/%d/download", n.baseURL, projectID)

	resp, err := n.get(ctx, endpoint)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	tmp, err := os.CreateTemp("", "sitemedic-premium-*.zip")
	if err != nil {
		return fmt.Errorf("create download file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("download project %d: %w", projectID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close download file: %w", err)
	}

	if err := fsutil.ExtractZip(tmpName, n.host.PluginsDir()); err != nil {
		return fmt.Errorf("extract project %d: %w", projectID, err)
	}

	n.logger.Info().Int("project", projectID).Msg("Premium plugin installed")
	return nil
}

// DeletePlugin removes a project's local files via the authenticated deletion
// endpoint, which answers with the plugin directory it removed.
func (n *HTTPNetwork) DeletePlugin(ctx context.Context, projectID int) error {
	if !n.Authenticated() {
		return ErrNotAuthenticated
	}

	endpoint := fmt.Sprintf("%s/api/v1/projects/%d/uninstall", n.baseURL, projectID)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build uninstall request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: uninstall returned %d", ErrUnavailable, resp.StatusCode)
	}

	var payload struct {
		Directory string `json:"directory"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode uninstall response: %w", err)
	}
	if payload.Directory == "" {
		return fmt.Errorf("uninstall response missing plugin directory")
	}

	target := filepath.Join(n.host.PluginsDir(), filepath.Base(payload.Directory))
	if err := fsutil.RemoveDir(target); err != nil {
		return fmt.Errorf("remove project %d files: %w", projectID, err)
	}

	n.logger.Info().Int("project", projectID).Str("dir", target).Msg("Premium plugin removed")
	return nil
}

func (n *HTTPNetwork) get(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build network request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		_ = resp.Body.Close()
		return nil, ErrNotAuthenticated
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: network returned %d", ErrUnavailable, resp.StatusCode)
	}
	return resp, nil
}

func (n *HTTPNetwork) getJSON(ctx context.Context, endpoint string, v any) error {
	resp, err := n.get(ctx, endpoint)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode network response: %w", err)
	}
	return nil
}
