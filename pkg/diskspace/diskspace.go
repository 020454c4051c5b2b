// Package diskspace implements the advisory pre-flight check deciding whether
// a backup is safe to create. Callers may always choose to proceed without a
// backup regardless of its verdict.
package diskspace

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sitemedic/sitemedic/pkg/fsutil"
)

// Kind selects which file set's size is estimated.
type Kind string

const (
	KindCoreReinstall   Kind = "core_reinstall"
	KindPluginReinstall Kind = "plugin_reinstall"
)

// SpaceStatus is the gate's verdict.
type SpaceStatus string

const (
	StatusSufficient   SpaceStatus = "sufficient"
	StatusInsufficient SpaceStatus = "insufficient"
	StatusUnknown      SpaceStatus = "unknown"
)

// bufferFactor is the 20% headroom demanded on top of the estimated backup.
const bufferFactor = 1.2

// Result is computed fresh on every evaluation; it is never cached.
type Result struct {
	Success      bool        `json:"success"`
	BackupSizeMB float64     `json:"backup_size_mb"`
	RequiredMB   float64     `json:"required_mb"`
	AvailableMB  float64     `json:"available_mb"`
	ShortfallMB  float64     `json:"shortfall_mb,omitempty"`
	SpaceStatus  SpaceStatus `json:"space_status"`
	Message      string      `json:"message"`
	Warning      bool        `json:"warning,omitempty"`
}

// Gate evaluates disk space ahead of backup creation.
type Gate struct {
	siteRoot   string
	pluginsDir string
	coreDirs   []string
	freeSpace  func(path string) (uint64, error)
	logger     zerolog.Logger
}

// NewGate creates a gate for the given site layout. coreDirs are relative to
// siteRoot.
func NewGate(siteRoot, pluginsDir string, coreDirs []string) *Gate {
	return &Gate{
		siteRoot:   siteRoot,
		pluginsDir: pluginsDir,
		coreDirs:   coreDirs,
		freeSpace:  freeSpace,
		logger:     log.With().Str("component", "diskspace").Logger(),
	}
}

// WithProbe overrides the free-space probe, for platforms that expose
// capacity through something other than the default statfs path.
func (g *Gate) WithProbe(probe func(path string) (uint64, error)) *Gate {
	g.freeSpace = probe
	return g
}

// Check estimates the backup size for kind and compares required space
// against the filesystem. A host that disables free-space introspection
// yields StatusUnknown with a warning flag rather than a failure.
func (g *Gate) Check(kind Kind) Result {
	var sizeBytes int64
	switch kind {
	case KindCoreReinstall:
		for _, dir := range g.coreDirs {
			s, _ := fsutil.DirSize(filepath.Join(g.siteRoot, dir))
			sizeBytes += s
		}
	default:
		sizeBytes, _ = fsutil.DirSize(g.pluginsDir)
	}

	backupMB := float64(sizeBytes) / (1 << 20)
	requiredMB := backupMB * bufferFactor

	avail, err := g.freeSpace(g.siteRoot)
	if err != nil {
		g.logger.Warn().Err(err).Msg("Free-space introspection unavailable")
		return Result{
			Success:      true,
			BackupSizeMB: backupMB,
			RequiredMB:   requiredMB,
			AvailableMB:  requiredMB, // placeholder estimate
			SpaceStatus:  StatusUnknown,
			Warning:      true,
			Message: fmt.Sprintf("Free disk space could not be determined; backup needs about %s",
				humanize.IBytes(uint64(requiredMB*(1<<20)))),
		}
	}

	availMB := float64(avail) / (1 << 20)
	if availMB < requiredMB {
		return Result{
			Success:      false,
			BackupSizeMB: backupMB,
			RequiredMB:   requiredMB,
			AvailableMB:  availMB,
			ShortfallMB:  requiredMB - availMB,
			SpaceStatus:  StatusInsufficient,
			Message: fmt.Sprintf("Backup needs %s but only %s is free",
				humanize.IBytes(uint64(requiredMB*(1<<20))),
				humanize.IBytes(avail)),
		}
	}

	return Result{
		Success:      true,
		BackupSizeMB: backupMB,
		RequiredMB:   requiredMB,
		AvailableMB:  availMB,
		SpaceStatus:  StatusSufficient,
		Message: fmt.Sprintf("%s free, %s required",
			humanize.IBytes(avail),
			humanize.IBytes(uint64(requiredMB*(1<<20)))),
	}
}
