package sigscan

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxDepth is the directory walk depth below the scan root.
	DefaultMaxDepth = 3

	chunkSize        = 64 * 1024
	maxLineCarry     = 256 * 1024
	gcFileInterval   = 100
	progressInterval = 20
)

// ErrOutsideRoot rejects scan targets that resolve outside the site root.
var ErrOutsideRoot = fmt.Errorf("scan path resolves outside the site root")

// noiseDirs are never descended into. Framework and vendor trees are both a
// false-positive source and a traversal cost with no remediation value.
var noiseDirs = map[string]struct{}{
	"cache":        {},
	"node_modules": {},
	"vendor":       {},
	".git":         {},
	"dist":         {},
	"build":        {},
	"min":          {},
	".svn":         {},
	"w3tc-cache":   {},
}

// skipExtensions are binary formats signatures cannot meaningfully match.
var skipExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".ico": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
	".zip": {}, ".gz": {}, ".mp3": {}, ".mp4": {}, ".pdf": {},
}

// FileScanner matches files under a site root against the signature set.
// Files are read in fixed-size chunks so memory stays flat regardless of
// file size.
type FileScanner struct {
	set      *Set
	siteRoot string
	maxDepth int
	report   ProgressFunc
	logger   zerolog.Logger
}

// NewFileScanner wires a file scanner rooted at siteRoot. maxDepth <= 0
// selects DefaultMaxDepth.
func NewFileScanner(set *Set, siteRoot string, maxDepth int) *FileScanner {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &FileScanner{
		set:      set,
		siteRoot: siteRoot,
		maxDepth: maxDepth,
		logger:   log.With().Str("component", "sigscan-files").Logger(),
	}
}

// WithProgress registers a bounded-interval progress callback.
func (s *FileScanner) WithProgress(fn ProgressFunc) *FileScanner {
	s.report = fn
	return s
}

// ScanDefault scans the standard pair: the site configuration file and the
// content-storage tree.
func (s *FileScanner) ScanDefault(ctx context.Context) ([]ThreatMatch, error) {
	var matches []ThreatMatch

	config := filepath.Join(s.siteRoot, "wp-config.php")
	if _, err := os.Stat(config); err == nil {
		m, err := s.ScanPath(ctx, config)
		if err != nil {
			return matches, err
		}
		matches = append(matches, m...)
	}

	m, err := s.ScanPath(ctx, filepath.Join(s.siteRoot, "wp-content"))
	return append(matches, m...), err
}

// ScanPath scans one file or directory tree. The target is resolved
// (symlinks, dot segments) and rejected if it escapes the site root before
// any file is opened.
func (s *FileScanner) ScanPath(ctx context.Context, target string) ([]ThreatMatch, error) {
	resolved, err := s.validatePath(target)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat scan target: %w", err)
	}
	if !info.IsDir() {
		return s.scanFile(resolved, s.relLabel(resolved))
	}
	return s.walk(ctx, resolved)
}

// validatePath resolves target and confirms it stays inside the resolved
// site root.
func (s *FileScanner) validatePath(target string) (string, error) {
	root, err := filepath.EvalSymlinks(s.siteRoot)
	if err != nil {
		return "", fmt.Errorf("resolve site root: %w", err)
	}

	abs := target
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve scan path: %w", err)
	}

	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, target)
	}
	return resolved, nil
}

func (s *FileScanner) relLabel(path string) string {
	if rel, err := filepath.Rel(s.siteRoot, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(path)
}

// walk traverses root depth-limited, skipping noise directories. Entry depth
// is the number of path components below root; entries deeper than maxDepth
// are never visited.
func (s *FileScanner) walk(ctx context.Context, root string) ([]ThreatMatch, error) {
	var matches []ThreatMatch
	scanned := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Debug().Err(err).Str("path", path).Msg("Walk entry skipped")
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if path == root {
			return nil
		}

		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return nil
		}
		depth := strings.Count(filepath.ToSlash(rel), "/") + 1

		if d.IsDir() {
			if _, noisy := noiseDirs[strings.ToLower(d.Name())]; noisy {
				return filepath.SkipDir
			}
			if depth >= s.maxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || depth > s.maxDepth {
			return nil
		}
		if _, skip := skipExtensions[strings.ToLower(filepath.Ext(path))]; skip {
			return nil
		}

		m, serr := s.scanFile(path, s.relLabel(path))
		if serr != nil {
			s.logger.Debug().Err(serr).Str("path", path).Msg("File scan skipped")
			return nil
		}
		matches = append(matches, m...)

		scanned++
		if scanned%gcFileInterval == 0 {
			runtime.GC()
		}
		if s.report != nil && scanned%progressInterval == 0 {
			s.report(scanned, 0, fmt.Sprintf("Scanned %d files", scanned))
		}
		return nil
	})

	if s.report != nil {
		s.report(scanned, scanned, fmt.Sprintf("File scan complete, %d files", scanned))
	}
	s.logger.Info().Int("files", scanned).Int("matches", len(matches)).Msg("File scan complete")
	return matches, err
}

// scanFile reads path in fixed-size chunks, carrying the trailing partial
// line into the next chunk so matches and line numbers stay correct across
// chunk boundaries.
func (s *FileScanner) scanFile(path, label string) ([]ThreatMatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var matches []ThreatMatch
	carry := ""
	line := 1
	buf := make([]byte, chunkSize)

	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			text := carry + string(buf[:n])
			cut := strings.LastIndexByte(text, '\n')
			if cut < 0 && len(text) <= maxLineCarry {
				carry = text
			} else {
				if cut < 0 {
					// One line longer than the carry cap. Scan it as-is
					// rather than growing without bound.
					cut = len(text) - 1
				}
				complete := text[:cut+1]
				matches = append(matches, s.set.scanFrom(complete, label, line)...)
				line += strings.Count(complete, "\n")
				carry = text[cut+1:]
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return matches, fmt.Errorf("read %s: %w", path, rerr)
		}
	}

	if carry != "" {
		matches = append(matches, s.set.scanFrom(carry, label, line)...)
	}
	return matches, nil
}
