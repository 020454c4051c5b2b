package reinstall

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sitemedic/sitemedic/pkg/analyzer"
	"github.com/sitemedic/sitemedic/pkg/backup"
	"github.com/sitemedic/sitemedic/pkg/diskspace"
	"github.com/sitemedic/sitemedic/pkg/progress"
	"github.com/sitemedic/sitemedic/pkg/storage"
	"github.com/sitemedic/sitemedic/pkg/wp"
)

type fakeHost struct {
	dir         string
	plugins     []wp.InstalledPlugin
	activated   []string
	deactivated []string
	installed   []string
	deleted     []string
}

func (h *fakeHost) InstalledPlugins(ctx context.Context) ([]wp.InstalledPlugin, error) {
	return h.plugins, nil
}

func (h *fakeHost) PluginsDir() string { return h.dir }

func (h *fakeHost) Activate(ctx context.Context, file string, networkWide bool) error {
	h.activated = append(h.activated, file)
	return nil
}

func (h *fakeHost) Deactivate(ctx context.Context, file string) error {
	h.deactivated = append(h.deactivated, file)
	return nil
}

func (h *fakeHost) DeletePlugin(ctx context.Context, file string) error {
	h.deleted = append(h.deleted, file)
	return nil
}

func (h *fakeHost) InstallFromURL(ctx context.Context, url string) error {
	h.installed = append(h.installed, url)
	return nil
}

type fakeRegistry struct {
	known map[string]*wp.RegistryPlugin
}

func (r *fakeRegistry) LookupPlugin(ctx context.Context, slug string) (*wp.RegistryPlugin, error) {
	if p, ok := r.known[slug]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%s: %w", slug, wp.ErrPluginNotFound)
}

func (r *fakeRegistry) LatestCoreVersion(ctx context.Context) (string, error) {
	return "6.5.0", nil
}

func (r *fakeRegistry) CoreArchiveURL(version string) string {
	return "https://downloads.example.test/release/wordpress-" + version + ".zip"
}

type fakeNetwork struct {
	authed       bool
	failDelete   map[int]error
	failInstall  map[int]error
	deletedIDs   []int
	installedIDs []int
}

func (n *fakeNetwork) Authenticated() bool { return n.authed }

func (n *fakeNetwork) Catalog(ctx context.Context) (map[int]wp.Project, error) {
	return nil, nil
}

func (n *fakeNetwork) CachedCatalog() map[int]wp.Project { return nil }

func (n *fakeNetwork) InstallPlugin(ctx context.Context, projectID int) error {
	if err := n.failInstall[projectID]; err != nil {
		return err
	}
	n.installedIDs = append(n.installedIDs, projectID)
	return nil
}

func (n *fakeNetwork) DeletePlugin(ctx context.Context, projectID int) error {
	if err := n.failDelete[projectID]; err != nil {
		return err
	}
	n.deletedIDs = append(n.deletedIDs, projectID)
	return nil
}

type orchestratorFixture struct {
	orch     *Orchestrator
	host     *fakeHost
	registry *fakeRegistry
	network  *fakeNetwork
	progress *progress.FileStore
	state    *storage.LocalStore
}

func newOrchestratorFixture(t *testing.T, network *fakeNetwork) *orchestratorFixture {
	t.Helper()

	root := t.TempDir()
	pluginsDir := filepath.Join(root, "wp-content", "plugins")
	require.NoError(t, os.MkdirAll(pluginsDir, 0o750))

	store, err := progress.NewFileStore(filepath.Join(root, "progress"))
	require.NoError(t, err)
	state, err := storage.NewLocalStore(filepath.Join(root, "state"))
	require.NoError(t, err)

	host := &fakeHost{dir: pluginsDir}
	registry := &fakeRegistry{known: map[string]*wp.RegistryPlugin{}}
	backups := backup.NewEngine(filepath.Join(root, "backups"), store, false)

	// Ample free space unless a test swaps the probe.
	gate := diskspace.NewGate(root, pluginsDir, nil).
		WithProbe(func(string) (uint64, error) { return 100 << 30, nil })

	return &orchestratorFixture{
		orch:     New(host, registry, network, backups, gate, store, state),
		host:     host,
		registry: registry,
		network:  network,
		progress: store,
		state:    state,
	}
}

// installPlugin makes a plugin exist on disk and in the host's enumeration so
// verification finds it.
func (f *orchestratorFixture) installPlugin(t *testing.T, file, name string) {
	t.Helper()
	path := filepath.Join(f.host.dir, filepath.FromSlash(file))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("<?php // "+name+"\n"), 0o640))
	f.host.plugins = append(f.host.plugins, wp.InstalledPlugin{File: file, Name: name})
}

func repoPlugin(slug, name string) analyzer.Plugin {
	return analyzer.Plugin{
		File:     slug + "/" + slug + ".php",
		Slug:     slug,
		Name:     name,
		Category: analyzer.CategoryRepository,
	}
}

func premiumPlugin(file, name string, projectID int, active bool) analyzer.Plugin {
	return analyzer.Plugin{
		File:      file,
		Slug:      file[:len(file)-len(filepath.Ext(file))],
		Name:      name,
		Category:  analyzer.CategoryPremium,
		ProjectID: projectID,
		Active:    active,
	}
}

func TestRunBatch_MultiBatchNeverSpansOrigins(t *testing.T) {
	fx := newOrchestratorFixture(t, &fakeNetwork{authed: true})

	repo := []analyzer.Plugin{
		repoPlugin("akismet", "Akismet"),
		repoPlugin("wordfence", "Wordfence"),
		repoPlugin("jetpack", "Jetpack"),
	}
	for _, p := range repo {
		fx.registry.known[p.Slug] = &wp.RegistryPlugin{
			Slug:        p.Slug,
			DownloadURL: "https://downloads.example.test/plugin/" + p.Slug + ".zip",
		}
		fx.installPlugin(t, p.File, p.Name)
	}
	premium := []analyzer.Plugin{
		premiumPlugin("seo-pro/seo-pro.php", "SEO Pro", 201, false),
		premiumPlugin("forms-pro/forms-pro.php", "Forms Pro", 202, false),
	}
	for _, p := range premium {
		fx.installPlugin(t, p.File, p.Name)
	}

	req := Request{
		Token:                "job-1",
		BatchSize:            2,
		ProceedWithoutBackup: true,
		Repository:           repo,
		Premium:              premium,
	}

	// Batch one: repository slice [0,2).
	resp, err := fx.orch.RunBatch(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, resp.Batch)
	require.True(t, resp.Batch.HasMore)
	require.Equal(t, 2, resp.Batch.NextBatchStart)
	require.Nil(t, resp.Results, "intermediate batches carry no results")

	// Batch two: [2,4) crosses the origin boundary, so it is clamped to the
	// last repository plugin and premium work starts in its own batch.
	req.BatchStart = 2
	resp, err = fx.orch.RunBatch(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp.Batch.HasMore)
	require.Equal(t, 3, resp.Batch.NextBatchStart)
	require.Empty(t, fx.network.installedIDs, "no premium work before the boundary batch")

	// Batch three: both premium plugins, then finalization.
	req.BatchStart = 3
	resp, err = fx.orch.RunBatch(context.Background(), req)
	require.NoError(t, err)
	require.False(t, resp.Batch.HasMore)
	require.NotNil(t, resp.Results)
	require.Len(t, resp.Results.Successful, 5)
	require.Empty(t, resp.Results.Failed)
	require.ElementsMatch(t, []int{201, 202}, fx.network.installedIDs)

	require.Len(t, resp.Verification, 5)
	for _, v := range resp.Verification {
		require.Equal(t, Verified, v.Status, "%s", v.Name)
	}

	// Side-store is dropped after the final batch.
	var acc Accumulated
	require.True(t, storage.IsNotFound(fx.state.Get("job-1", &acc)))

	rec, err := fx.progress.Read("job-1")
	require.NoError(t, err)
	require.Equal(t, progress.StatusComplete, rec.Status)
	require.Equal(t, 100, rec.Progress)
}

func TestRunBatch_ProtectedPluginNeverAppearsInOutcomes(t *testing.T) {
	fx := newOrchestratorFixture(t, &fakeNetwork{authed: true})

	protected := premiumPlugin("network-dashboard/network-dashboard.php", "Network Dashboard", 101, true)
	protected.Category = analyzer.CategoryPremiumProtected
	regular := premiumPlugin("seo-pro/seo-pro.php", "SEO Pro", 201, false)
	fx.installPlugin(t, regular.File, regular.Name)

	resp, err := fx.orch.RunBatch(context.Background(), Request{
		Token:                "job-2",
		ProceedWithoutBackup: true,
		Premium:              []analyzer.Plugin{protected, regular},
	})
	require.NoError(t, err)
	require.False(t, resp.Batch.HasMore)

	for _, e := range append(resp.Results.Successful, resp.Results.Failed...) {
		path, _ := e.Key.Path()
		require.NotEqual(t, protected.File, path)
	}
	for _, v := range resp.Verification {
		path, _ := v.Key.Path()
		require.NotEqual(t, protected.File, path)
	}
	require.NotContains(t, fx.network.deletedIDs, 101)
	require.NotContains(t, fx.network.installedIDs, 101)
	require.Empty(t, fx.host.deactivated, "protected plugin must not be touched")
}

func TestRunBatch_UnauthenticatedNetworkFailsAllPendingPremium(t *testing.T) {
	fx := newOrchestratorFixture(t, &fakeNetwork{authed: false})

	premium := []analyzer.Plugin{
		premiumPlugin("seo-pro/seo-pro.php", "SEO Pro", 201, true),
		premiumPlugin("forms-pro/forms-pro.php", "Forms Pro", 202, true),
	}

	resp, err := fx.orch.RunBatch(context.Background(), Request{
		Token:                "job-3",
		ProceedWithoutBackup: true,
		Premium:              premium,
	})
	require.NoError(t, err)
	require.False(t, resp.Batch.HasMore, "an unreachable origin must not leave the job pending")
	require.NotNil(t, resp.Results)
	require.Len(t, resp.Results.Failed, 2)
	for _, e := range resp.Results.Failed {
		require.Equal(t, OutcomeFailed, e.Status)
		require.Contains(t, e.Reason, ErrOriginUnavailable.Error())
		require.Contains(t, e.Reason, "not authenticated")
	}
	require.Empty(t, fx.host.deactivated, "plugins stay untouched when the origin is down")
	require.Empty(t, fx.network.installedIDs)
}

func TestRunBatch_PremiumDeleteFailureSkipsInstall(t *testing.T) {
	network := &fakeNetwork{
		authed:     true,
		failDelete: map[int]error{201: fmt.Errorf("deletion endpoint returned 502")},
	}
	fx := newOrchestratorFixture(t, network)

	p := premiumPlugin("seo-pro/seo-pro.php", "SEO Pro", 201, true)
	fx.installPlugin(t, p.File, p.Name)

	resp, err := fx.orch.RunBatch(context.Background(), Request{
		Token:                "job-4",
		ProceedWithoutBackup: true,
		Premium:              []analyzer.Plugin{p},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results.Failed, 1)
	require.Contains(t, resp.Results.Failed[0].Reason, "delete:")

	require.Equal(t, []string{p.File}, fx.host.deactivated)
	require.Empty(t, fx.network.installedIDs, "no download after a failed delete")
	require.Empty(t, fx.host.activated, "plugin stays deactivated after a failed delete")
}

func TestRunBatch_DiskSpacePauseWaitsForDecision(t *testing.T) {
	fx := newOrchestratorFixture(t, &fakeNetwork{authed: true})

	p := repoPlugin("akismet", "Akismet")
	fx.registry.known[p.Slug] = &wp.RegistryPlugin{Slug: p.Slug, DownloadURL: "https://downloads.example.test/akismet.zip"}
	fx.installPlugin(t, p.File, p.Name)

	// Make the backup estimate nonzero and the free space smaller than the
	// estimate plus headroom.
	big := filepath.Join(fx.host.dir, "akismet", "bundle.dat")
	require.NoError(t, os.WriteFile(big, make([]byte, 1<<20), 0o640))
	fx.orch.gate.WithProbe(func(string) (uint64, error) { return 64 << 10, nil })

	req := Request{Token: "job-5", Repository: []analyzer.Plugin{p}}
	resp, err := fx.orch.RunBatch(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, resp.DiskSpaceWarning, "insufficient space must pause, not fail")
	require.Equal(t, diskspace.StatusInsufficient, resp.DiskSpaceWarning.SpaceStatus)
	require.Nil(t, resp.Batch, "no work happens before the caller decides")

	rec, err := fx.progress.Read("job-5")
	require.NoError(t, err)
	require.Equal(t, progress.StatusRunning, rec.Status)

	// An explicit proceed_without_backup resumes past the gate.
	req.ProceedWithoutBackup = true
	resp, err = fx.orch.RunBatch(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, resp.DiskSpaceWarning)
	require.NotNil(t, resp.Results)
	require.Len(t, resp.Results.Successful, 1)
}

func TestRunBatch_FirstBatchBacksUpAndCleansSuspiciousFiles(t *testing.T) {
	fx := newOrchestratorFixture(t, &fakeNetwork{authed: true})

	p := repoPlugin("akismet", "Akismet")
	fx.registry.known[p.Slug] = &wp.RegistryPlugin{Slug: p.Slug, DownloadURL: "https://downloads.example.test/akismet.zip"}
	fx.installPlugin(t, p.File, p.Name)

	rogue := filepath.Join(fx.host.dir, "wp-install.php.suspected")
	require.NoError(t, os.WriteFile(rogue, []byte("<?php eval($_POST['x']);"), 0o640))

	resp, err := fx.orch.RunBatch(context.Background(), Request{
		Token:        "job-6",
		CreateBackup: true,
		Repository:   []analyzer.Plugin{p},
		Suspicious: []analyzer.SuspiciousFile{
			{Path: rogue, Name: "wp-install.php.suspected"},
			{Path: "/etc/passwd", Name: "passwd"},
		},
	})
	require.NoError(t, err)

	require.NotNil(t, resp.Backup)
	require.Positive(t, resp.Backup.Files)
	require.FileExists(t, resp.Backup.Path)

	require.NoFileExists(t, rogue, "suspicious file inside the plugins directory is deleted")
	require.NotNil(t, resp.Results)
	require.Equal(t, []string{"/etc/passwd"}, resp.Results.CleanupFailures,
		"paths outside the plugins directory are refused, not deleted")
	require.FileExists(t, "/etc/passwd")
}

func TestRunBatch_RepositoryLookupFailureIsPerPlugin(t *testing.T) {
	fx := newOrchestratorFixture(t, &fakeNetwork{authed: true})

	good := repoPlugin("akismet", "Akismet")
	bad := repoPlugin("ghost-plugin", "Ghost Plugin")
	fx.registry.known[good.Slug] = &wp.RegistryPlugin{Slug: good.Slug, DownloadURL: "https://downloads.example.test/akismet.zip"}
	fx.installPlugin(t, good.File, good.Name)

	resp, err := fx.orch.RunBatch(context.Background(), Request{
		Token:                "job-7",
		ProceedWithoutBackup: true,
		Repository:           []analyzer.Plugin{good, bad},
	})
	require.NoError(t, err, "a per-plugin failure never fails the batch")
	require.Len(t, resp.Results.Successful, 1)
	require.Len(t, resp.Results.Failed, 1)
	require.Contains(t, resp.Results.Failed[0].Reason, "lookup")
}

// faultyStateStore fails every write while delegating reads and deletes.
type faultyStateStore struct {
	storage.Store
}

func (faultyStateStore) Put(token string, v any) error {
	return fmt.Errorf("write state: disk full")
}

func TestRunBatch_SideStoreFailureWritesTerminalProgress(t *testing.T) {
	fx := newOrchestratorFixture(t, &fakeNetwork{authed: true})
	fx.orch.state = faultyStateStore{fx.state}

	p := repoPlugin("akismet", "Akismet")
	fx.registry.known[p.Slug] = &wp.RegistryPlugin{Slug: p.Slug, DownloadURL: "https://downloads.example.test/akismet.zip"}
	fx.installPlugin(t, p.File, p.Name)

	_, err := fx.orch.RunBatch(context.Background(), Request{
		Token:                "job-8",
		ProceedWithoutBackup: true,
		Repository:           []analyzer.Plugin{p},
	})
	require.Error(t, err)

	rec, rerr := fx.progress.Read("job-8")
	require.NoError(t, rerr, "a polling client must see the failure, not a stalled running record")
	require.Equal(t, progress.StatusError, rec.Status)
	require.Contains(t, rec.Details, "disk full")
}

func TestRunBatch_CleanupToleratesTrailingSeparatorInPluginsDir(t *testing.T) {
	fx := newOrchestratorFixture(t, &fakeNetwork{authed: true})
	fx.host.dir += string(filepath.Separator)

	rogue := filepath.Join(fx.host.dir, "dropper.php")
	require.NoError(t, os.WriteFile(rogue, []byte("<?php eval($_POST['x']);"), 0o640))

	resp, err := fx.orch.RunBatch(context.Background(), Request{
		Token:                "job-9",
		ProceedWithoutBackup: true,
		Suspicious:           []analyzer.SuspiciousFile{{Path: rogue, Name: "dropper.php"}},
	})
	require.NoError(t, err)
	require.NoFileExists(t, rogue)
	require.Empty(t, resp.Results.CleanupFailures,
		"a trailing separator on the configured directory must not refuse valid paths")
}

func TestRunBatch_RejectsBadParameters(t *testing.T) {
	fx := newOrchestratorFixture(t, &fakeNetwork{authed: true})

	_, err := fx.orch.RunBatch(context.Background(), Request{Token: "../escape"})
	require.ErrorIs(t, err, ErrInvalidBatch)

	_, err = fx.orch.RunBatch(context.Background(), Request{Token: "ok", BatchStart: -1})
	require.ErrorIs(t, err, ErrInvalidBatch)
}
