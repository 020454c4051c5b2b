package commands

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/sitemedic/sitemedic/pkg/analyzer"
	"github.com/sitemedic/sitemedic/pkg/backup"
	"github.com/sitemedic/sitemedic/pkg/corefiles"
	"github.com/sitemedic/sitemedic/pkg/progress"
	"github.com/sitemedic/sitemedic/pkg/sigscan"
	"github.com/sitemedic/sitemedic/pkg/storage"
	"github.com/sitemedic/sitemedic/pkg/wp"
)

// toolkit bundles the components CLI commands construct from configuration.
type toolkit struct {
	host     *wp.LocalHost
	registry *wp.HTTPRegistry
	network  *wp.HTTPNetwork
	backups  *backup.Engine
	progress progress.Store
	state    storage.Store

	db *sql.DB
}

func newToolkit(state *State) (*toolkit, error) {
	cfg := state.Config

	progressStore, err := progress.NewFileStore(filepath.Join(state.Workspace, "progress"))
	if err != nil {
		return nil, err
	}
	stateStore, err := storage.NewLocalStore(filepath.Join(state.Workspace, "state"))
	if err != nil {
		return nil, err
	}

	host := wp.NewLocalHost(filepath.Join(cfg.Site.Root, cfg.Site.PluginsDir))
	return &toolkit{
		host:     host,
		registry: wp.NewHTTPRegistry(cfg.Origins.Registry.APIBaseURL, cfg.Origins.Registry.DownloadBaseURL),
		network:  wp.NewHTTPNetwork(cfg.Origins.Network.BaseURL, cfg.Origins.Network.Token, host),
		backups: backup.NewEngine(filepath.Join(state.Workspace, "backups"),
			progressStore, cfg.Backup.PreferMirror),
		progress: progressStore,
		state:    stateStore,
	}, nil
}

func (t *toolkit) analyzer(state *State) *analyzer.Analyzer {
	return analyzer.New(t.host, t.registry, t.network, t.progress,
		state.Config.Origins.Network.ProtectedProjectID)
}

func (t *toolkit) replacer(state *State) *corefiles.Replacer {
	return corefiles.NewReplacer(state.Config.Site.Root,
		filepath.Join(state.Workspace, "scratch"),
		filepath.Join(state.Workspace, "baseline", "core.json"),
		t.registry, t.backups, t.progress)
}

func (t *toolkit) signatures(state *State) (*sigscan.Provider, error) {
	return sigscan.NewProvider(state.Config.Scanner.SignaturesFile)
}

// openDB opens the configured SQLite database, if any.
func (t *toolkit) openDB(state *State) (wp.RowQuerier, error) {
	path := state.Config.Site.DatabaseFile
	if path == "" {
		return nil, fmt.Errorf("no database file configured (set site.database_file)")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	t.db = db
	return wp.NewSQLRowQuerier(db), nil
}

func (t *toolkit) close() {
	if t.db != nil {
		_ = t.db.Close()
	}
}
