// Package api holds the dependency container and response envelope shared by
// every versioned handler.
package api

import (
	"sync/atomic"

	"github.com/sitemedic/sitemedic/pkg/analyzer"
	"github.com/sitemedic/sitemedic/pkg/corefiles"
	"github.com/sitemedic/sitemedic/pkg/progress"
	"github.com/sitemedic/sitemedic/pkg/reinstall"
	"github.com/sitemedic/sitemedic/pkg/sigscan"
	"github.com/sitemedic/sitemedic/pkg/wp"
)

// Deps holds dependencies for API handlers. This pattern enables dependency
// injection and easier testing.
type Deps struct {
	Analyzer     *analyzer.Analyzer
	Orchestrator *reinstall.Orchestrator
	Replacer     *corefiles.Replacer

	// Progress is read by the polling endpoint and written through by the
	// phase components.
	Progress progress.Store

	// Signatures provides the current signature set, hot-swappable in
	// server mode.
	Signatures *sigscan.Provider

	// DB is nil when no database connection is configured; the database
	// scan endpoint then reports itself unavailable.
	DB wp.RowQuerier

	SiteRoot    string
	ScanDepth   int
	TablePrefix string

	// Ready flag for the readiness check.
	Ready *atomic.Bool
}
