// Package analyzer classifies every installed plugin into the category that
// determines its reinstall path, and collects suspicious files found in the
// plugins directory.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sitemedic/sitemedic/pkg/fsutil"
	"github.com/sitemedic/sitemedic/pkg/progress"
	"github.com/sitemedic/sitemedic/pkg/wp"
)

// DemoPluginFile is the well-known demo plugin shipped with the platform.
// It is deleted outright during analysis, never classified or reinstalled.
const DemoPluginFile = "hello.php"

// ErrPluginsDirNotWritable aborts analysis before any classification work:
// nothing downstream can succeed against a read-only plugins directory.
var ErrPluginsDirNotWritable = errors.New("plugins directory is not writable")

// Category determines a plugin's reinstall path.
type Category string

const (
	// CategoryRepository plugins reinstall from the public registry by slug.
	CategoryRepository Category = "repository"
	// CategoryPremium plugins reinstall through the authenticated network.
	CategoryPremium Category = "premium"
	// CategoryPremiumProtected marks the network's own dashboard plugin,
	// excluded from reinstall and verification: replacing it risks breaking
	// the mechanism used to reinstall everything else.
	CategoryPremiumProtected Category = "premium_protected"
	// CategoryNonRepository plugins match no known origin and are only
	// reported, never modified.
	CategoryNonRepository Category = "non_repository"
)

// Plugin is one classified plugin. File is the exact install path key for
// premium plugins; repository plugins are keyed by Slug.
type Plugin struct {
	File      string   `json:"file"`
	Slug      string   `json:"slug"`
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Category  Category `json:"category"`
	ProjectID int      `json:"project_id,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Active    bool     `json:"active"`
	// NetworkActive records whether activation was network-wide, so a later
	// reinstall can reactivate identically.
	NetworkActive bool `json:"network_active"`
}

// SuspiciousFile is a plugins-directory entry that matches no installed
// plugin. Ownership transfers to the reinstall orchestrator, which offers it
// for cleanup.
type SuspiciousFile struct {
	Path      string  `json:"path"`
	Name      string  `json:"name"`
	IsDir     bool    `json:"is_directory"`
	SizeMB    float64 `json:"size_mb"`
	FileCount int     `json:"file_count,omitempty"`
}

// Result is the analyzer's hand-off structure. Built fresh on every run,
// never persisted.
type Result struct {
	Repository    []Plugin         `json:"repository"`
	Premium       []Plugin         `json:"premium"`
	NonRepository []Plugin         `json:"non_repository"`
	Suspicious    []SuspiciousFile `json:"suspicious_files"`
	Total         int              `json:"total"`
	DemoDeleted   bool             `json:"demo_deleted,omitempty"`
}

// Analyzer performs the single-pass classification.
type Analyzer struct {
	host        wp.Host
	registry    wp.Registry
	network     wp.Network
	store       progress.Store
	protectedID int
	logger      zerolog.Logger
}

// New creates an Analyzer. protectedID is the premium project id of the
// network's own dashboard plugin.
func New(host wp.Host, registry wp.Registry, network wp.Network, store progress.Store, protectedID int) *Analyzer {
	return &Analyzer{
		host:        host,
		registry:    registry,
		network:     network,
		store:       store,
		protectedID: protectedID,
		logger:      log.With().Str("component", "analyzer").Logger(),
	}
}

// Analyze iterates every installed plugin exactly once and classifies it.
// Classification priority: embedded premium marker header (definitive),
// cached premium catalog, public registry lookup by slug, otherwise
// non-repository.
func (a *Analyzer) Analyze(ctx context.Context, token string) (*Result, error) {
	if !fsutil.WritableDir(a.host.PluginsDir()) {
		return &Result{}, fmt.Errorf("%w: %s", ErrPluginsDirNotWritable, a.host.PluginsDir())
	}

	installed, err := a.host.InstalledPlugins(ctx)
	if err != nil {
		return &Result{}, fmt.Errorf("enumerate plugins: %w", err)
	}

	catalog := a.premiumCatalog(ctx)
	result := &Result{Total: len(installed)}

	for i, p := range installed {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		a.writeProgress(token, i+1, len(installed), p.Name)

		if p.File == DemoPluginFile {
			if err := a.host.DeletePlugin(ctx, p.File); err != nil {
				a.logger.Warn().Err(err).Str("plugin", p.File).Msg("Failed to delete demo plugin")
			} else {
				result.DemoDeleted = true
				a.logger.Info().Str("plugin", p.File).Msg("Demo plugin deleted")
			}
			continue
		}

		classified := a.classify(ctx, p, catalog)
		switch classified.Category {
		case CategoryPremium, CategoryPremiumProtected:
			result.Premium = append(result.Premium, classified)
		case CategoryRepository:
			result.Repository = append(result.Repository, classified)
		default:
			result.NonRepository = append(result.NonRepository, classified)
		}
	}

	result.Suspicious = a.findSuspicious(installed)

	a.logger.Info().
		Int("repository", len(result.Repository)).
		Int("premium", len(result.Premium)).
		Int("non_repository", len(result.NonRepository)).
		Int("suspicious", len(result.Suspicious)).
		Msg("Plugin analysis completed")

	return result, nil
}

func (a *Analyzer) classify(ctx context.Context, p wp.InstalledPlugin, catalog map[string]wp.Project) Plugin {
	out := Plugin{
		File:          p.File,
		Slug:          p.Slug(),
		Name:          p.Name,
		Version:       p.Version,
		Active:        p.Active,
		NetworkActive: p.NetworkActive,
	}

	// 1. The embedded marker header is definitive, winning over every other
	// signal.
	if raw, ok := p.Headers[wp.ProjectIDHeader]; ok {
		if id, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && id > 0 {
			out.ProjectID = id
			out.Category = a.premiumCategory(id)
			return out
		}
	}

	// 2. Cached premium catalog covers plugins whose marker was stripped.
	if proj, ok := catalog[out.Slug]; ok {
		out.ProjectID = proj.ID
		out.Category = a.premiumCategory(proj.ID)
		return out
	}

	// 3. Public registry lookup by slug.
	if _, err := a.registry.LookupPlugin(ctx, out.Slug); err == nil {
		out.Category = CategoryRepository
		return out
	} else if !errors.Is(err, wp.ErrPluginNotFound) {
		a.logger.Warn().Err(err).Str("slug", out.Slug).Msg("Registry lookup failed")
	}

	// 4. Nothing matched: informational only, never modified.
	out.Category = CategoryNonRepository
	out.Reason = "not found in repository"
	return out
}

func (a *Analyzer) premiumCategory(projectID int) Category {
	if projectID == a.protectedID {
		return CategoryPremiumProtected
	}
	return CategoryPremium
}

// premiumCatalog refreshes the network catalog when possible and falls back
// to the cached copy, keyed by slug.
func (a *Analyzer) premiumCatalog(ctx context.Context) map[string]wp.Project {
	var projects map[int]wp.Project
	if a.network != nil && a.network.Authenticated() {
		var err error
		projects, err = a.network.Catalog(ctx)
		if err != nil {
			a.logger.Warn().Err(err).Msg("Catalog refresh failed, using cached copy")
			projects = a.network.CachedCatalog()
		}
	} else if a.network != nil {
		projects = a.network.CachedCatalog()
	}

	bySlug := make(map[string]wp.Project, len(projects))
	for _, proj := range projects {
		bySlug[proj.Slug] = proj
	}
	return bySlug
}

// findSuspicious reports plugins-directory entries not belonging to any
// installed plugin.
func (a *Analyzer) findSuspicious(installed []wp.InstalledPlugin) []SuspiciousFile {
	known := make(map[string]struct{}, len(installed))
	for _, p := range installed {
		known[p.Slug()] = struct{}{}
	}
	known[strings.TrimSuffix(DemoPluginFile, ".php")] = struct{}{}

	entries, err := os.ReadDir(a.host.PluginsDir())
	if err != nil {
		a.logger.Warn().Err(err).Msg("Could not scan for suspicious files")
		return nil
	}

	var suspicious []SuspiciousFile
	for _, entry := range entries {
		name := entry.Name()
		if name == "index.php" || name == ".htaccess" {
			continue
		}

		slug := strings.TrimSuffix(name, ".php")
		if _, ok := known[slug]; ok {
			continue
		}

		full := filepath.Join(a.host.PluginsDir(), name)
		sf := SuspiciousFile{Path: full, Name: name, IsDir: entry.IsDir()}
		if entry.IsDir() {
			size, count := fsutil.DirSize(full)
			sf.SizeMB = float64(size) / (1 << 20)
			sf.FileCount = count
		} else if info, err := entry.Info(); err == nil {
			sf.SizeMB = float64(info.Size()) / (1 << 20)
		}
		suspicious = append(suspicious, sf)
	}
	return suspicious
}

func (a *Analyzer) writeProgress(token string, current, total int, name string) {
	if token == "" || a.store == nil {
		return
	}
	rec := progress.Running(fmt.Sprintf("Analyzing %s", name), current, total)
	_ = a.store.Write(token, rec)
}
