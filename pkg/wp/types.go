// Package wp defines the collaborator interfaces the toolkit consumes: the
// plugin host (install, activate, delete primitives), the public plugin
// registry, and the authenticated premium network. The core calls these and
// interprets success or failure only; rendering and platform internals stay
// on the other side of the boundary.
package wp

import (
	"context"
	"errors"
)

// Collaborator errors shared across implementations.
var (
	// ErrPluginNotFound is returned by registry lookups for unknown slugs.
	ErrPluginNotFound = errors.New("plugin not found in repository")

	// ErrNotAuthenticated is returned by premium network operations when no
	// site credentials are configured.
	ErrNotAuthenticated = errors.New("premium network not authenticated")

	// ErrUnavailable indicates a remote origin could not be reached.
	ErrUnavailable = errors.New("origin unavailable")
)

// ProjectIDHeader is the embedded plugin header identifying a premium network
// project. Its presence is the definitive origin signal for a plugin, winning
// regardless of registry lookups.
const ProjectIDHeader = "Network-Project-ID"

// InstalledPlugin describes one plugin installed on the host.
type InstalledPlugin struct {
	// File is the plugin's main file path relative to the plugins directory,
	// e.g. "akismet/akismet.php". This is the exact install path key used for
	// premium plugins.
	File          string            `json:"file"`
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	Headers       map[string]string `json:"headers,omitempty"`
	Active        bool              `json:"active"`
	NetworkActive bool              `json:"network_active"`
}

// Slug derives the short registry slug from the install path: the plugin's
// directory name, or the file basename for single-file plugins.
func (p InstalledPlugin) Slug() string {
	for i := 0; i < len(p.File); i++ {
		if p.File[i] == '/' {
			return p.File[:i]
		}
	}
	if n := len(p.File); n > 4 && p.File[n-4:] == ".php" {
		return p.File[:n-4]
	}
	return p.File
}

// Host exposes the platform's plugin and file primitives.
type Host interface {
	// InstalledPlugins enumerates every installed plugin exactly once.
	InstalledPlugins(ctx context.Context) ([]InstalledPlugin, error)

	// PluginsDir returns the absolute path of the plugins directory.
	PluginsDir() string

	// Activate activates a plugin, network-wide when networkWide is set.
	Activate(ctx context.Context, file string, networkWide bool) error

	// Deactivate deactivates a plugin.
	Deactivate(ctx context.Context, file string) error

	// DeletePlugin removes a plugin's files from the plugins directory.
	DeletePlugin(ctx context.Context, file string) error

	// InstallFromURL downloads a plugin archive from url and unpacks it into
	// the plugins directory.
	InstallFromURL(ctx context.Context, url string) error
}

// RegistryPlugin is the public registry's view of a plugin.
type RegistryPlugin struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	DownloadURL string `json:"download_link"`
}

// Registry is the public, unauthenticated plugin registry (lookup by slug)
// plus core release metadata.
type Registry interface {
	// LookupPlugin returns metadata for slug, or an error wrapping
	// ErrPluginNotFound when the registry does not know it.
	LookupPlugin(ctx context.Context, slug string) (*RegistryPlugin, error)

	// LatestCoreVersion resolves the newest stable core release version.
	LatestCoreVersion(ctx context.Context) (string, error)

	// CoreArchiveURL returns the release archive URL for a core version.
	CoreArchiveURL(version string) string
}

// Project is the premium network's view of a purchased plugin.
type Project struct {
	ID      int    `json:"id"`
	Slug    string `json:"slug"`
	Title   string `json:"title"`
	Version string `json:"version"`
}

// Network is the authenticated premium plugin network. Downloads bypass the
// public registry entirely: premium and public versions can share a slug.
type Network interface {
	// Authenticated reports whether site credentials are configured.
	Authenticated() bool

	// Catalog fetches the authenticated project catalog.
	Catalog(ctx context.Context) (map[int]Project, error)

	// CachedCatalog returns the last known catalog without a network round
	// trip. Used as the fallback origin signal when a plugin's marker header
	// has been stripped.
	CachedCatalog() map[int]Project

	// InstallPlugin downloads a project from the authenticated install
	// endpoint and unpacks it into the plugins directory.
	InstallPlugin(ctx context.Context, projectID int) error

	// DeletePlugin removes a project's local files via the network's own
	// authenticated deletion API.
	DeletePlugin(ctx context.Context, projectID int) error
}

// RowQuerier is the relational-store primitive the database scanner consumes.
type RowQuerier interface {
	// QueryRows runs query with args and returns up to limit rows of string
	// columns.
	QueryRows(ctx context.Context, query string, limit int, args ...any) ([][]string, error)
}
