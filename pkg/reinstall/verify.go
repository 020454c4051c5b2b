package reinstall

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sitemedic/sitemedic/pkg/analyzer"
	"github.com/sitemedic/sitemedic/pkg/wp"
)

// VerificationStatus classifies one expected plugin after reinstallation.
type VerificationStatus string

const (
	Verified  VerificationStatus = "verified"
	Missing   VerificationStatus = "missing"
	Corrupted VerificationStatus = "corrupted"
)

// VerificationEntry is the per-plugin verification result.
type VerificationEntry struct {
	Name   string             `json:"name"`
	Key    PluginKey          `json:"key"`
	Status VerificationStatus `json:"status"`
}

// Verify re-enumerates installed plugins and confirms each expected plugin's
// files exist and are readable. Repository plugins are looked up by slug,
// premium plugins by their exact install path; the tagged key keeps the two
// from being conflated.
func (o *Orchestrator) Verify(ctx context.Context, repository, premium []analyzer.Plugin) []VerificationEntry {
	installed, err := o.host.InstalledPlugins(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Verification enumeration failed")
		installed = nil
	}

	bySlug := make(map[string]wp.InstalledPlugin, len(installed))
	byPath := make(map[string]wp.InstalledPlugin, len(installed))
	for _, p := range installed {
		bySlug[p.Slug()] = p
		byPath[p.File] = p
	}

	entries := make([]VerificationEntry, 0, len(repository)+len(premium))

	for _, p := range repository {
		entry := VerificationEntry{Name: p.Name, Key: SlugKey(p.Slug)}
		found, ok := bySlug[p.Slug]
		entry.Status = o.verifyFiles(found, ok)
		entries = append(entries, entry)
	}

	for _, p := range premium {
		entry := VerificationEntry{Name: p.Name, Key: PathKey(p.File)}
		found, ok := byPath[p.File]
		entry.Status = o.verifyFiles(found, ok)
		entries = append(entries, entry)
	}

	return entries
}

// verifyFiles checks the plugin's main file on disk: absent means missing,
// present but unreadable or empty means corrupted.
func (o *Orchestrator) verifyFiles(p wp.InstalledPlugin, found bool) VerificationStatus {
	if !found {
		return Missing
	}

	path := filepath.Join(o.host.PluginsDir(), filepath.FromSlash(p.File))
	info, err := os.Stat(path)
	if err != nil {
		return Missing
	}
	if info.Size() == 0 {
		return Corrupted
	}

	f, err := os.Open(path)
	if err != nil {
		return Corrupted
	}
	buf := make([]byte, 1)
	_, err = f.Read(buf)
	_ = f.Close()
	if err != nil {
		return Corrupted
	}
	return Verified
}
