package backup

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sitemedic/sitemedic/pkg/fsutil"
)

// mirrorStrategy recursively copies files into a timestamped sibling
// directory preserving relative structure. Used when archiving is
// unavailable on the host.
type mirrorStrategy struct {
	engine *Engine
}

func (s *mirrorStrategy) Name() string { return "mirror" }

func (s *mirrorStrategy) Create(ctx context.Context, targetDir, token string) (*Handle, error) {
	now := time.Now()
	mirrorDir := filepath.Join(s.engine.destDir,
		fmt.Sprintf("%s-%s", filepath.Base(targetDir), stamp(now)))

	if err := os.MkdirAll(mirrorDir, 0o750); err != nil {
		return nil, fmt.Errorf("create mirror directory: %w", err)
	}

	handle := &Handle{Path: mirrorDir, CreatedAt: now}
	_, total := dirCount(targetDir)

	walkErr := filepath.WalkDir(targetDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			handle.Skipped++
			s.engine.logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable entry")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(targetDir, path)
		if err != nil {
			handle.Skipped++
			return nil
		}

		if err := fsutil.CopyFile(path, filepath.Join(mirrorDir, rel)); err != nil {
			handle.Skipped++
			s.engine.logger.Warn().Err(err).Str("path", path).Msg("Skipping file")
			return nil
		}

		handle.Files++
		s.engine.reportProgress(token, handle.Files, total)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	if handle.Files == 0 {
		_ = os.RemoveAll(mirrorDir)
		return nil, ErrNothingBackedUp
	}
	return handle, nil
}
