// Package app wires the server runtime: component construction, the HTTP
// server, the periodic scan scheduler, and lifecycle management.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/sitemedic/sitemedic/pkg/analyzer"
	"github.com/sitemedic/sitemedic/pkg/backup"
	"github.com/sitemedic/sitemedic/pkg/config"
	"github.com/sitemedic/sitemedic/pkg/corefiles"
	"github.com/sitemedic/sitemedic/pkg/diskspace"
	"github.com/sitemedic/sitemedic/pkg/progress"
	"github.com/sitemedic/sitemedic/pkg/reinstall"
	"github.com/sitemedic/sitemedic/pkg/scheduler"
	"github.com/sitemedic/sitemedic/pkg/server/api"
	"github.com/sitemedic/sitemedic/pkg/server/httpx"
	"github.com/sitemedic/sitemedic/pkg/sigscan"
	"github.com/sitemedic/sitemedic/pkg/storage"
	"github.com/sitemedic/sitemedic/pkg/workspace"
	"github.com/sitemedic/sitemedic/pkg/wp"
)

// App orchestrates the server runtime components.
type App struct {
	HTTP      *http.Server
	Scheduler *scheduler.Scheduler
	Watcher   *sigscan.SetWatcher
	Ready     *atomic.Bool
	Config    config.Config
	Deps      *api.Deps

	db     *sql.DB
	logger zerolog.Logger
}

// New builds every component from the configuration and mounts the router.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	logger.Info().Msg("Initializing server application")

	wsRoot, err := workspace.Prepare(cfg.Server.WorkspaceDir)
	if err != nil {
		return nil, fmt.Errorf("prepare workspace: %w", err)
	}

	progressStore, err := progress.NewFileStore(filepath.Join(wsRoot, "progress"))
	if err != nil {
		return nil, fmt.Errorf("progress store: %w", err)
	}
	stateStore, err := storage.NewLocalStore(filepath.Join(wsRoot, "state"))
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}

	host := wp.NewLocalHost(filepath.Join(cfg.Site.Root, cfg.Site.PluginsDir))
	registry := wp.NewHTTPRegistry(cfg.Origins.Registry.APIBaseURL, cfg.Origins.Registry.DownloadBaseURL)
	network := wp.NewHTTPNetwork(cfg.Origins.Network.BaseURL, cfg.Origins.Network.Token, host)

	backups := backup.NewEngine(filepath.Join(wsRoot, "backups"), progressStore, cfg.Backup.PreferMirror)
	gate := diskspace.NewGate(cfg.Site.Root, host.PluginsDir(), corefiles.CoreCodeDirs)

	signatures, err := sigscan.NewProvider(cfg.Scanner.SignaturesFile)
	if err != nil {
		return nil, fmt.Errorf("load signatures: %w", err)
	}
	logger.Info().Int("signatures", signatures.Set().Len()).Msg("Signature set loaded")

	var db *sql.DB
	var querier wp.RowQuerier
	if cfg.Site.DatabaseFile != "" {
		db, err = sql.Open("sqlite", cfg.Site.DatabaseFile)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		querier = wp.NewSQLRowQuerier(db)
	}

	ready := &atomic.Bool{}
	deps := &api.Deps{
		Analyzer: analyzer.New(host, registry, network, progressStore,
			cfg.Origins.Network.ProtectedProjectID),
		Orchestrator: reinstall.New(host, registry, network, backups, gate,
			progressStore, stateStore),
		Replacer: corefiles.NewReplacer(cfg.Site.Root,
			filepath.Join(wsRoot, "scratch"),
			filepath.Join(wsRoot, "baseline", "core.json"),
			registry, backups, progressStore),
		Progress:    progressStore,
		Signatures:  signatures,
		DB:          querier,
		SiteRoot:    cfg.Site.Root,
		ScanDepth:   cfg.Scanner.MaxDepth,
		TablePrefix: cfg.Site.TablePrefix,
		Ready:       ready,
	}

	router := httpx.NewRouter(deps)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Addr, cfg.Server.Port),
		Handler:      httpx.Chain(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	a := &App{
		HTTP:   httpServer,
		Ready:  ready,
		Config: cfg,
		Deps:   deps,
		db:     db,
		logger: logger,
	}

	if cfg.Schedule.ScanCron != "" {
		a.Scheduler = scheduler.New()
		if err := a.Scheduler.SetScanJob(cfg.Schedule.ScanCron, a.periodicScan); err != nil {
			return nil, err
		}
	}

	if cfg.Scanner.WatchFile && cfg.Scanner.SignaturesFile != "" {
		a.Watcher, err = sigscan.NewSetWatcher(signatures)
		if err != nil {
			return nil, fmt.Errorf("signature watcher: %w", err)
		}
	}

	return a, nil
}

// Run starts the server and blocks until the context is canceled or the
// server fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info().Str("addr", a.HTTP.Addr).Msg("Starting SiteMedic server")

	serverErr := make(chan error, 1)
	go func() {
		if err := a.HTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	if a.Scheduler != nil {
		a.Scheduler.Start()
		if next := a.Scheduler.NextRunAt(); next != nil {
			a.logger.Info().Time("next_run", *next).Msg("Periodic scan scheduled")
		}
	}
	if a.Watcher != nil {
		go func() {
			_ = a.Watcher.Start(ctx)
		}()
	}

	a.Ready.Store(true)
	a.logger.Info().Msg("Server is ready and accepting connections")

	select {
	case <-ctx.Done():
		a.logger.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		a.logger.Error().Err(err).Msg("Server error")
		return err
	}

	return a.shutdown()
}

// periodicScan runs the default file scan from the scheduler.
func (a *App) periodicScan() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	scanner := sigscan.NewFileScanner(a.Deps.Signatures.Set(), a.Config.Site.Root,
		a.Config.Scanner.MaxDepth)
	matches, err := scanner.ScanDefault(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("Scheduled scan failed")
		return
	}
	a.logger.Info().Int("matches", len(matches)).Msg("Scheduled scan finished")
}

// shutdown performs graceful shutdown of all components.
func (a *App) shutdown() error {
	a.logger.Info().Msg("Initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.Ready.Store(false)

	if err := a.HTTP.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("HTTP server shutdown failed")
		return err
	}
	a.logger.Info().Msg("HTTP server stopped")

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Watcher != nil {
		_ = a.Watcher.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Database close failed")
		}
	}

	a.logger.Info().Msg("Server shutdown complete")
	return nil
}
