package backup

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// archiveStrategy streams every file under the target directory into a single
// timestamped zip, file by file, so very large trees never load into memory
// at once.
type archiveStrategy struct {
	engine *Engine
}

func (s *archiveStrategy) Name() string { return "archive" }

func (s *archiveStrategy) Create(ctx context.Context, targetDir, token string) (*Handle, error) {
	now := time.Now()
	archivePath := filepath.Join(s.engine.destDir,
		fmt.Sprintf("%s-%s.zip", filepath.Base(targetDir), stamp(now)))

	out, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	zw := zip.NewWriter(out)

	handle := &Handle{Path: archivePath, CreatedAt: now}
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

		if err := addToArchive(zw, path, rel); err != nil {
			handle.Skipped++
			s.engine.logger.Warn().Err(err).Str("path", path).Msg("Skipping file")
			return nil
		}

		handle.Files++
		s.engine.reportProgress(token, handle.Files, total)
		return nil
	})

	if err := zw.Close(); err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	if walkErr != nil {
		_ = os.Remove(archivePath)
		return nil, walkErr
	}
	if handle.Files == 0 {
		_ = os.Remove(archivePath)
		return nil, ErrNothingBackedUp
	}
	return handle, nil
}

// addToArchive streams one file into the zip under its relative path.
func addToArchive(zw *zip.Writer, path, rel string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

// dirCount returns the size and file count of a tree; only the count is used
// for progress totals.
func dirCount(dir string) (int64, int) {
	var size int64
	var count int
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			count++
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size, count
}
