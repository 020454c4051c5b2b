package corefiles

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// canonicalFiles is the fixed set of core files whose content hashes form
// the trust baseline recorded after a reinstall.
var canonicalFiles = []string{
	"index.php",
	"wp-login.php",
	"wp-load.php",
	"wp-settings.php",
	"wp-blog-header.php",
	"wp-cron.php",
	"xmlrpc.php",
	"wp-admin/index.php",
	"wp-includes/version.php",
}

// Baseline is the post-install trust record used by future integrity checks.
type Baseline struct {
	Version    string            `json:"version"`
	RecordedAt time.Time         `json:"recorded_at"`
	Checksums  map[string]string `json:"checksums"`
}

// computeChecksum returns the sha256 of a file, hex encoded with an
// algorithm prefix.
func computeChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return "sha256:" + hex.EncodeToString(hash.Sum(nil)), nil
}

// recordBaseline hashes the canonical core files under siteRoot and writes
// the baseline file. The file lock guards against a concurrent writer from
// another process on the same workspace.
func recordBaseline(siteRoot, baselinePath, version string) (*Baseline, error) {
	b := &Baseline{
		Version:    version,
		RecordedAt: time.Now(),
		Checksums:  make(map[string]string, len(canonicalFiles)),
	}

	for _, rel := range canonicalFiles {
		sum, err := computeChecksum(filepath.Join(siteRoot, filepath.FromSlash(rel)))
		if err != nil {
			// A canonical file some release doesn't ship is not fatal.
			continue
		}
		b.Checksums[rel] = sum
	}

	lock := flock.New(baselinePath + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock baseline: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode baseline: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(baselinePath), 0o750); err != nil {
		return nil, fmt.Errorf("create baseline directory: %w", err)
	}

	tmp := baselinePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return nil, fmt.Errorf("write baseline: %w", err)
	}
	if err := os.Rename(tmp, baselinePath); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("commit baseline: %w", err)
	}
	return b, nil
}

// LoadBaseline reads a previously recorded baseline.
func LoadBaseline(baselinePath string) (*Baseline, error) {
	data, err := os.ReadFile(baselinePath)
	if err != nil {
		return nil, fmt.Errorf("read baseline: %w", err)
	}
	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode baseline: %w", err)
	}
	return &b, nil
}
