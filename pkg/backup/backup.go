// Package backup snapshots a file set before destructive changes. Two
// interchangeable strategies exist: a streamed zip archive and a mirror copy
// fallback for hosts where archiving is unavailable.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sitemedic/sitemedic/pkg/progress"
)

// progressEvery is the file-count cadence for progress writes, so long
// backups do not hammer the progress store.
const progressEvery = 25

// ErrNothingBackedUp is returned when not a single file could be copied.
// Individual unreadable files are soft failures; a backup fails as a whole
// only when zero files made it.
var ErrNothingBackedUp = errors.New("no files could be backed up")

// Handle describes a completed backup.
type Handle struct {
	// Path is the archive file or mirror directory created.
	Path string `json:"path"`
	// Files is the number of files successfully backed up.
	Files int `json:"files"`
	// Skipped is the number of files that could not be read and were skipped.
	Skipped int `json:"skipped"`
	// CreatedAt is the snapshot timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// Strategy creates a snapshot of targetDir. token, when non-empty, selects
// the progress record updated during the run.
type Strategy interface {
	Create(ctx context.Context, targetDir, token string) (*Handle, error)
	Name() string
}

// Engine selects a strategy by runtime capability and runs it.
type Engine struct {
	destDir  string
	store    progress.Store
	strategy Strategy
	logger   zerolog.Logger
}

// NewEngine creates an engine writing snapshots under destDir. The archive
// strategy is preferred; mirror copy is the fallback when archiving is
// disabled.
func NewEngine(destDir string, store progress.Store, preferMirror bool) *Engine {
	e := &Engine{
		destDir: destDir,
		store:   store,
		logger:  log.With().Str("component", "backup").Logger(),
	}
	if preferMirror {
		e.strategy = &mirrorStrategy{engine: e}
	} else {
		e.strategy = &archiveStrategy{engine: e}
	}
	return e
}

// Create snapshots targetDir with the selected strategy.
func (e *Engine) Create(ctx context.Context, targetDir, token string) (*Handle, error) {
	if err := os.MkdirAll(e.destDir, 0o750); err != nil {
		return nil, fmt.Errorf("create backup destination: %w", err)
	}

	e.logger.Info().
		Str("strategy", e.strategy.Name()).
		Str("target", targetDir).
		Msg("Creating backup")

	handle, err := e.strategy.Create(ctx, targetDir, token)
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("path", handle.Path).
		Int("files", handle.Files).
		Int("skipped", handle.Skipped).
		Msg("Backup created")
	return handle, nil
}

// reportProgress writes a best-effort progress record at the fixed cadence.
func (e *Engine) reportProgress(token string, done, total int) {
	if token == "" || e.store == nil {
		return
	}
	if done%progressEvery != 0 && done != total {
		return
	}
	rec := progress.Running("Backing up files", done, total)
	rec.Progress = progress.BandBackup.Percent(done, total)
	_ = e.store.Write(token, rec)
}

// stamp names snapshots by creation time.
func stamp(t time.Time) string {
	return t.Format("20060102-150405")
}
