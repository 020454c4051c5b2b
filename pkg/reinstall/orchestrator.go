// Package reinstall drives the batched, resumable reinstallation pipeline:
// backup, suspicious-file cleanup, repository reinstalls, premium reinstalls,
// and verification. Each HTTP request performs one bounded slice of work and
// returns; the orchestrator is stateless across requests except for what it
// persists through the progress store and the token-keyed side-store.
package reinstall

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sitemedic/sitemedic/pkg/analyzer"
	"github.com/sitemedic/sitemedic/pkg/backup"
	"github.com/sitemedic/sitemedic/pkg/diskspace"
	"github.com/sitemedic/sitemedic/pkg/fsutil"
	"github.com/sitemedic/sitemedic/pkg/progress"
	"github.com/sitemedic/sitemedic/pkg/storage"
	"github.com/sitemedic/sitemedic/pkg/wp"
)

// DefaultBatchSize bounds one request's work on hosts with short execution
// budgets.
const DefaultBatchSize = 5

// Request carries one batch invocation. The classified plugin lists travel
// with every request; only outcome accumulation is persisted server-side.
type Request struct {
	Token      string `json:"progress_file"`
	BatchStart int    `json:"batch_start"`
	BatchSize  int    `json:"batch_size"`

	CreateBackup         bool `json:"create_backup"`
	ProceedWithoutBackup bool `json:"proceed_without_backup"`

	Repository []analyzer.Plugin         `json:"repository"`
	Premium    []analyzer.Plugin         `json:"premium"`
	Suspicious []analyzer.SuspiciousFile `json:"suspicious_files"`
}

// Response is the per-batch result. Exactly one of DiskSpaceWarning or Batch
// is set; Results and Verification appear only on the final batch.
type Response struct {
	// DiskSpaceWarning is the pause point: the caller must re-invoke with an
	// explicit create_backup or proceed_without_backup choice.
	DiskSpaceWarning *diskspace.Result `json:"disk_space_warning,omitempty"`

	Batch        *BatchState         `json:"batch_info,omitempty"`
	Backup       *backup.Handle      `json:"backup,omitempty"`
	Results      *Accumulated        `json:"results,omitempty"`
	Verification []VerificationEntry `json:"verification,omitempty"`
}

// Orchestrator runs the five-phase state machine.
type Orchestrator struct {
	host     wp.Host
	registry wp.Registry
	network  wp.Network
	backups  *backup.Engine
	gate     *diskspace.Gate
	store    progress.Store
	state    storage.Store
	logger   zerolog.Logger
}

// New wires an Orchestrator.
func New(host wp.Host, registry wp.Registry, network wp.Network, backups *backup.Engine,
	gate *diskspace.Gate, store progress.Store, state storage.Store) *Orchestrator {
	return &Orchestrator{
		host:     host,
		registry: registry,
		network:  network,
		backups:  backups,
		gate:     gate,
		store:    store,
		state:    state,
		logger:   log.With().Str("component", "reinstall").Logger(),
	}
}

// RunBatch executes one bounded slice of the job. Phases are gated to
// specific batch_start conditions so each runs exactly once across however
// many requests the whole job takes; re-sending a batch after a partial
// failure neither re-runs the backup nor double-counts results.
func (o *Orchestrator) RunBatch(ctx context.Context, req Request) (*Response, error) {
	if err := storage.ValidateToken(req.Token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	if req.BatchStart < 0 {
		return nil, fmt.Errorf("%w: negative batch_start", ErrInvalidBatch)
	}
	if req.BatchSize <= 0 {
		req.BatchSize = DefaultBatchSize
	}

	// Protected premium plugins are excluded from the work queue entirely;
	// they appear in no outcome list under any input.
	premiumQueue := make([]analyzer.Plugin, 0, len(req.Premium))
	for _, p := range req.Premium {
		if p.Category == analyzer.CategoryPremiumProtected {
			continue
		}
		premiumQueue = append(premiumQueue, p)
	}

	totalRepo := len(req.Repository)
	total := totalRepo + len(premiumQueue)

	resp := &Response{}

	if req.BatchStart == 0 {
		pause, err := o.runFirstBatchPhases(ctx, req, resp)
		if err != nil {
			o.writeProgress(req.Token, progress.Failed("Reinstallation aborted", err.Error()))
			return nil, err
		}
		if pause {
			return resp, nil
		}
	}

	var batchOutcome Accumulated
	bs := Plan(req.BatchStart, req.BatchSize, total)

	switch {
	case total == 0:
		// Nothing to reinstall; fall through to finalization.
	case req.BatchStart < totalRepo:
		// Repository slice, clamped at the origin boundary: a batch never
		// spans two origins.
		end := bs.End()
		if end > totalRepo {
			end = totalRepo
			bs.HasMore = true
			bs.NextBatchStart = totalRepo
		}
		batchOutcome = o.runRepositoryBatch(ctx, req.Repository[req.BatchStart:end])
		o.writeProgress(req.Token, o.bandRecord(progress.BandRepoBatch,
			"Reinstalling repository plugins", end, totalRepo))
	default:
		premStart := req.BatchStart - totalRepo
		if premStart > len(premiumQueue) {
			return nil, fmt.Errorf("%w: batch_start beyond queue", ErrInvalidBatch)
		}
		if !o.network.Authenticated() {
			// Premium origin is down for the whole job: fail every pending
			// plugin in one pass and go straight to finalization.
			batchOutcome = failAll(premiumQueue[premStart:],
				fmt.Sprintf("%v: premium network not authenticated", ErrOriginUnavailable))
			bs.HasMore = false
			bs.NextBatchStart = 0
		} else {
			end := bs.End() - totalRepo
			batchOutcome = o.runPremiumBatch(ctx, premiumQueue[premStart:end])
			o.writeProgress(req.Token, o.bandRecord(progress.BandPremiumBatch,
				"Reinstalling premium plugins", end, len(premiumQueue)))
		}
	}

	// A side-store failure here loses the batch outcome, so the job cannot
	// safely continue; the polling client must see a terminal record.
	acc, err := loadAccumulated(o.state, req.Token)
	if err != nil {
		o.writeProgress(req.Token, progress.Failed("Reinstallation aborted", err.Error()))
		return nil, err
	}
	acc.Merge(batchOutcome)
	if err := saveAccumulated(o.state, req.Token, acc); err != nil {
		o.writeProgress(req.Token, progress.Failed("Reinstallation aborted", err.Error()))
		return nil, err
	}

	resp.Batch = &bs
	if bs.HasMore {
		return resp, nil
	}

	// Final batch: verify, hand the merged results back, drop the side-store.
	o.writeProgress(req.Token, o.bandRecord(progress.BandFinalize, "Verifying installed plugins", 0, 1))
	resp.Verification = o.Verify(ctx, req.Repository, premiumQueue)
	resp.Results = &acc

	if err := o.state.Delete(req.Token); err != nil {
		o.logger.Warn().Err(err).Str("token", req.Token).Msg("Failed to delete side-store entry")
	}
	o.writeProgress(req.Token, progress.Complete("Reinstallation complete"))
	return resp, nil
}

// runFirstBatchPhases handles the phases gated to batch_start == 0: the
// disk-space choice point, the backup, and suspicious-file cleanup. It
// returns pause=true when the caller must resolve the disk-space warning
// before work continues.
func (o *Orchestrator) runFirstBatchPhases(ctx context.Context, req Request, resp *Response) (pause bool, err error) {
	if !req.CreateBackup && !req.ProceedWithoutBackup {
		check := o.gate.Check(diskspace.KindPluginReinstall)
		if check.SpaceStatus == diskspace.StatusInsufficient {
			o.writeProgress(req.Token, progress.Running("Waiting for disk space decision", 0, 0))
			resp.DiskSpaceWarning = &check
			return true, nil
		}
	}

	// Any stale accumulator from an earlier job under the same token would
	// leak into this one.
	if err := o.state.Delete(req.Token); err != nil {
		o.logger.Warn().Err(err).Str("token", req.Token).Msg("Failed to clear stale side-store entry")
	}

	if req.CreateBackup {
		o.writeProgress(req.Token, o.bandRecord(progress.BandBackup, "Creating backup", 0, 1))
		handle, err := o.backups.Create(ctx, o.host.PluginsDir(), req.Token)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrBackupFailed, err)
		}
		resp.Backup = handle
	}

	if len(req.Suspicious) > 0 {
		o.writeProgress(req.Token, o.bandRecord(progress.BandCleanup, "Removing suspicious files", 0, len(req.Suspicious)))
		failures := o.cleanupSuspicious(req.Suspicious)
		if len(failures) > 0 {
			acc := Accumulated{CleanupFailures: failures}
			if err := saveAccumulated(o.state, req.Token, acc); err != nil {
				o.logger.Warn().Err(err).Msg("Failed to record cleanup failures")
			}
		}
	}
	return false, nil
}

// cleanupSuspicious deletes flagged paths. Per-file failures are collected,
// never fatal. Paths outside the plugins directory are refused.
func (o *Orchestrator) cleanupSuspicious(files []analyzer.SuspiciousFile) []string {
	// The configured plugins directory may carry a trailing separator or be
	// relative; both sides are absolutized before comparing.
	root, err := filepath.Abs(o.host.PluginsDir())
	if err != nil {
		root = filepath.Clean(o.host.PluginsDir())
	}
	var failures []string

	for _, sf := range files {
		clean, err := filepath.Abs(sf.Path)
		if err != nil || !strings.HasPrefix(clean, root+string(filepath.Separator)) {
			o.logger.Warn().Str("path", sf.Path).Msg("Refusing to delete path outside plugins directory")
			failures = append(failures, sf.Path)
			continue
		}

		if err := fsutil.RemoveDir(clean); err != nil {
			o.logger.Warn().Err(err).Str("path", sf.Path).Msg("Failed to delete suspicious file")
			failures = append(failures, sf.Path)
			continue
		}
		o.logger.Info().Str("path", sf.Path).Msg("Suspicious file removed")
	}
	return failures
}

// runRepositoryBatch reinstalls a slice of repository plugins from the public
// registry, continuing past per-plugin failures.
func (o *Orchestrator) runRepositoryBatch(ctx context.Context, plugins []analyzer.Plugin) Accumulated {
	var out Accumulated
	for _, p := range plugins {
		entry := OutcomeEntry{Name: p.Name, Key: SlugKey(p.Slug), Origin: OriginRepository}

		if err := o.reinstallRepositoryPlugin(ctx, p); err != nil {
			entry.Status = OutcomeFailed
			entry.Reason = err.Error()
			out.Failed = append(out.Failed, entry)
			o.logger.Warn().Err(err).Str("slug", p.Slug).Msg("Repository reinstall failed")
			continue
		}

		entry.Status = OutcomeSuccess
		out.Successful = append(out.Successful, entry)
		o.logger.Info().Str("slug", p.Slug).Msg("Repository plugin reinstalled")
	}
	return out
}

func (o *Orchestrator) reinstallRepositoryPlugin(ctx context.Context, p analyzer.Plugin) error {
	info, err := o.registry.LookupPlugin(ctx, p.Slug)
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}
	if info.DownloadURL == "" {
		return fmt.Errorf("lookup: registry returned no download URL")
	}
	if err := o.host.InstallFromURL(ctx, info.DownloadURL); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	return nil
}

// runPremiumBatch reinstalls a slice of premium plugins: deactivate,
// authenticated delete, authenticated install, reactivate identically. The
// first failing step records a reason and skips the remaining steps for that
// plugin; a failed delete leaves the plugin deactivated with no download
// attempted.
func (o *Orchestrator) runPremiumBatch(ctx context.Context, plugins []analyzer.Plugin) Accumulated {
	var out Accumulated
	for _, p := range plugins {
		entry := o.reinstallPremiumPlugin(ctx, p)
		if entry.Status == OutcomeSuccess {
			out.Successful = append(out.Successful, entry)
		} else {
			out.Failed = append(out.Failed, entry)
		}
	}
	return out
}

func (o *Orchestrator) reinstallPremiumPlugin(ctx context.Context, p analyzer.Plugin) OutcomeEntry {
	entry := OutcomeEntry{Name: p.Name, Key: PathKey(p.File), Origin: OriginPremium}
	logger := o.logger.With().Str("plugin", p.File).Int("project", p.ProjectID).Logger()

	wasActive := p.Active
	if wasActive {
		if err := o.host.Deactivate(ctx, p.File); err != nil {
			entry.Status = OutcomeFailed
			entry.Reason = fmt.Sprintf("deactivate: %v", err)
			logger.Warn().Err(err).Msg("Premium deactivate failed")
			return entry
		}
	}

	if err := o.network.DeletePlugin(ctx, p.ProjectID); err != nil {
		entry.Status = OutcomeFailed
		entry.Reason = fmt.Sprintf("delete: %v", err)
		logger.Warn().Err(err).Msg("Premium delete failed")
		return entry
	}

	if err := o.network.InstallPlugin(ctx, p.ProjectID); err != nil {
		entry.Status = OutcomeFailed
		entry.Reason = fmt.Sprintf("install: %v", err)
		logger.Warn().Err(err).Msg("Premium install failed")
		return entry
	}

	entry.Status = OutcomeSuccess
	if wasActive {
		if err := o.host.Activate(ctx, p.File, p.NetworkActive); err != nil {
			// Install succeeded; the reactivation failure is recorded
			// separately.
			entry.ReactivationError = err.Error()
			logger.Warn().Err(err).Msg("Premium reactivate failed")
		}
	}
	logger.Info().Msg("Premium plugin reinstalled")
	return entry
}

// failAll marks every pending premium plugin failed with one shared reason.
func failAll(plugins []analyzer.Plugin, reason string) Accumulated {
	var out Accumulated
	for _, p := range plugins {
		out.Failed = append(out.Failed, OutcomeEntry{
			Name:   p.Name,
			Key:    PathKey(p.File),
			Status: OutcomeFailed,
			Origin: OriginPremium,
			Reason: reason,
		})
	}
	return out
}

func (o *Orchestrator) bandRecord(band progress.Band, message string, done, total int) progress.Record {
	rec := progress.Running(message, done, total)
	rec.Progress = band.Percent(done, total)
	return rec
}

// writeProgress is best-effort: a progress write failure never fails the
// phase that reported it.
func (o *Orchestrator) writeProgress(token string, rec progress.Record) {
	if token == "" || o.store == nil {
		return
	}
	if err := o.store.Write(token, rec); err != nil {
		o.logger.Debug().Err(err).Str("token", token).Msg("Progress write failed")
	}
}
