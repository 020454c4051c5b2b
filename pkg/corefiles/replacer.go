// Package corefiles downloads, unpacks, and swaps the core application files
// while preserving designated user paths. The two core code directories are
// removed entirely and replaced, the strongest guarantee against hidden
// tampering, rather than a selective file diff.
package corefiles

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sitemedic/sitemedic/pkg/backup"
	"github.com/sitemedic/sitemedic/pkg/fsutil"
	"github.com/sitemedic/sitemedic/pkg/progress"
	"github.com/sitemedic/sitemedic/pkg/wp"
)

// CoreCodeDirs are the two directories removed entirely and replaced on
// every reinstall.
var CoreCodeDirs = []string{"wp-admin", "wp-includes"}

// archiveRootDir is the single top-level directory core release archives
// wrap their contents in.
const archiveRootDir = "wordpress"

// Result reports a completed core reinstall.
type Result struct {
	Version          string         `json:"version"`
	FilesReplaced    int            `json:"files_replaced"`
	Preserved        []string       `json:"preserved,omitempty"`
	PreserveFailures []string       `json:"preserve_failures,omitempty"`
	Backup           *backup.Handle `json:"backup,omitempty"`
	BaselineRecorded bool           `json:"baseline_recorded"`
}

// Replacer performs core reinstalls for one site tree.
type Replacer struct {
	siteRoot     string
	scratchDir   string
	baselinePath string
	registry     wp.Registry
	backups      *backup.Engine
	store        progress.Store
	client       *http.Client
	logger       zerolog.Logger
}

// NewReplacer wires a Replacer. scratchDir holds downloads and extraction
// output; baselinePath is where the trust baseline is recorded.
func NewReplacer(siteRoot, scratchDir, baselinePath string, registry wp.Registry,
	backups *backup.Engine, store progress.Store) *Replacer {
	return &Replacer{
		siteRoot:     siteRoot,
		scratchDir:   scratchDir,
		baselinePath: baselinePath,
		registry:     registry,
		backups:      backups,
		store:        store,
		client:       &http.Client{Timeout: 5 * time.Minute},
		logger:       log.With().Str("component", "corefiles").Logger(),
	}
}

// Reinstall replaces the core files with a freshly downloaded release.
// version may be "latest". Download and extraction failures are fatal;
// failing to preserve an individual preserve path is logged, non-fatal.
func (r *Replacer) Reinstall(ctx context.Context, version string, preservePaths []string,
	createBackup bool, token string) (*Result, error) {

	resolved, err := r.resolveVersion(ctx, version)
	if err != nil {
		r.fail(token, "Could not resolve core version", err)
		return nil, err
	}
	result := &Result{Version: resolved}

	r.report(token, progress.Running("Preparing core reinstall", 0, 0))

	if createBackup && r.backups != nil {
		for _, dir := range CoreCodeDirs {
			target := filepath.Join(r.siteRoot, dir)
			if _, err := os.Stat(target); err != nil {
				continue
			}
			handle, err := r.backups.Create(ctx, target, token)
			if err != nil {
				r.fail(token, "Core backup failed", err)
				return nil, fmt.Errorf("backup %s: %w", dir, err)
			}
			result.Backup = handle
		}
	}

	// Snapshot preserve paths before anything destructive; entries inside
	// the core code directories would not survive the removal below.
	preserveDir := filepath.Join(r.scratchDir, "preserve")
	snapshots := r.snapshotPreserved(preservePaths, preserveDir, result)

	archive, err := r.download(ctx, resolved, token)
	if err != nil {
		r.fail(token, "Core download failed", err)
		return nil, err
	}
	defer func() { _ = os.Remove(archive) }()

	extractDir := filepath.Join(r.scratchDir, "core-"+resolved)
	if err := fsutil.RemoveDir(extractDir); err != nil {
		r.fail(token, "Could not prepare extraction directory", err)
		return nil, err
	}
	r.report(token, progress.Running("Extracting core archive", 0, 0))
	if err := fsutil.ExtractZip(archive, extractDir); err != nil {
		r.fail(token, "Core extraction failed", err)
		return nil, fmt.Errorf("extract core archive: %w", err)
	}
	defer func() { _ = os.RemoveAll(extractDir) }()

	srcRoot := filepath.Join(extractDir, archiveRootDir)
	if _, err := os.Stat(srcRoot); err != nil {
		srcRoot = extractDir
	}

	// Full removal then replace. Already-absent directories are a success
	// case here, not a warning to suppress.
	for _, dir := range CoreCodeDirs {
		if err := fsutil.RemoveDir(filepath.Join(r.siteRoot, dir)); err != nil {
			r.fail(token, "Could not remove core directory", err)
			return nil, err
		}
	}

	r.report(token, progress.Running("Copying core files", 0, 0))
	replaced, err := r.copyTree(ctx, srcRoot, preservePaths)
	if err != nil {
		r.fail(token, "Core file copy failed", err)
		return nil, err
	}
	result.FilesReplaced = replaced

	r.restorePreserved(snapshots, result)

	if baseline, err := recordBaseline(r.siteRoot, r.baselinePath, resolved); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to record trust baseline")
	} else {
		result.BaselineRecorded = true
		r.logger.Info().Int("files", len(baseline.Checksums)).Msg("Trust baseline recorded")
	}

	r.report(token, progress.Complete(fmt.Sprintf("Core %s reinstalled", resolved)))
	r.logger.Info().Str("version", resolved).Int("files", replaced).Msg("Core reinstall complete")
	return result, nil
}

func (r *Replacer) resolveVersion(ctx context.Context, version string) (string, error) {
	if version == "" || version == "latest" {
		return r.registry.LatestCoreVersion(ctx)
	}
	if _, err := semver.NewVersion(version); err != nil {
		return "", fmt.Errorf("invalid core version %q: %w", version, err)
	}
	return version, nil
}

func (r *Replacer) download(ctx context.Context, version, token string) (string, error) {
	url := r.registry.CoreArchiveURL(version)
	r.report(token, progress.Running("Downloading core archive", 0, 0))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build core download request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", wp.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: core download returned %d", wp.ErrUnavailable, resp.StatusCode)
	}

	if err := os.MkdirAll(r.scratchDir, 0o750); err != nil {
		return "", fmt.Errorf("create scratch directory: %w", err)
	}
	out, err := os.CreateTemp(r.scratchDir, "core-*.zip")
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	name := out.Name()

	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("download core archive: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("close download file: %w", err)
	}
	return name, nil
}

// copyTree copies every extracted file into the site root except paths under
// a preserve entry.
func (r *Replacer) copyTree(ctx context.Context, srcRoot string, preservePaths []string) (int, error) {
	var copied int
	err := filepath.WalkDir(srcRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(srcRoot, path)
		if err != nil {
			return err
		}
		if isPreserved(rel, preservePaths) {
			return nil
		}

		if err := fsutil.CopyFile(path, filepath.Join(r.siteRoot, rel)); err != nil {
			return err
		}
		copied++
		return nil
	})
	return copied, err
}

// isPreserved matches rel against the preserve list: exact file match or
// prefix match for directory entries.
func isPreserved(rel string, preservePaths []string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range preservePaths {
		p = strings.TrimSuffix(filepath.ToSlash(p), "/")
		if p == "" {
			continue
		}
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}

// snapshotPreserved copies each preserve path to the scratch preserve
// directory. Failures are logged and collected; preservation is best-effort.
func (r *Replacer) snapshotPreserved(preservePaths []string, preserveDir string, result *Result) map[string]string {
	snapshots := make(map[string]string)
	for _, p := range preservePaths {
		rel := strings.TrimSuffix(filepath.ToSlash(p), "/")
		if rel == "" {
			continue
		}
		src := filepath.Join(r.siteRoot, filepath.FromSlash(rel))
		info, err := os.Stat(src)
		if err != nil {
			continue
		}

		dst := filepath.Join(preserveDir, filepath.FromSlash(rel))
		if info.IsDir() {
			err = copyDir(src, dst)
		} else {
			err = fsutil.CopyFile(src, dst)
		}
		if err != nil {
			r.logger.Warn().Err(err).Str("path", rel).Msg("Failed to snapshot preserve path")
			result.PreserveFailures = append(result.PreserveFailures, rel)
			continue
		}
		snapshots[rel] = dst
	}
	return snapshots
}

// restorePreserved writes the snapshots back over the replaced tree.
func (r *Replacer) restorePreserved(snapshots map[string]string, result *Result) {
	for rel, snap := range snapshots {
		dst := filepath.Join(r.siteRoot, filepath.FromSlash(rel))
		info, err := os.Stat(snap)
		if err != nil {
			result.PreserveFailures = append(result.PreserveFailures, rel)
			continue
		}

		if info.IsDir() {
			err = copyDir(snap, dst)
		} else {
			err = fsutil.CopyFile(snap, dst)
		}
		if err != nil {
			r.logger.Warn().Err(err).Str("path", rel).Msg("Failed to restore preserve path")
			result.PreserveFailures = append(result.PreserveFailures, rel)
			continue
		}
		result.Preserved = append(result.Preserved, rel)
		_ = os.RemoveAll(snap)
	}
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		return fsutil.CopyFile(path, filepath.Join(dst, rel))
	})
}

func (r *Replacer) report(token string, rec progress.Record) {
	if token == "" || r.store == nil {
		return
	}
	_ = r.store.Write(token, rec)
}

func (r *Replacer) fail(token, message string, err error) {
	r.report(token, progress.Failed(message, err.Error()))
}
