package wp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sitemedic/sitemedic/pkg/fsutil"
)

// headerReadLimit bounds how much of a plugin's main file is read when
// parsing its comment headers. Matches the platform's own 8KB convention.
const headerReadLimit = 8 * 1024

// LocalHost implements Host against a site tree on the local filesystem.
// Activation state lives in the site database, which this process does not
// own; activate and deactivate are recorded through the optional Activator
// hook and are otherwise no-ops.
type LocalHost struct {
	pluginsDir string
	client     *http.Client
	logger     zerolog.Logger

	// Activator, when set, receives activation state changes. The default
	// nil value makes activation bookkeeping a no-op.
	Activator ActivationRecorder
}

// ActivationRecorder receives plugin activation state changes.
type ActivationRecorder interface {
	Activate(ctx context.Context, file string, networkWide bool) error
	Deactivate(ctx context.Context, file string) error
}

// NewLocalHost creates a Host rooted at pluginsDir.
func NewLocalHost(pluginsDir string) *LocalHost {
	return &LocalHost{
		pluginsDir: pluginsDir,
		client:     &http.Client{Timeout: 60 * time.Second},
		logger:     log.With().Str("component", "wp.host").Logger(),
	}
}

// PluginsDir returns the absolute path of the plugins directory.
func (h *LocalHost) PluginsDir() string {
	return h.pluginsDir
}

// InstalledPlugins enumerates every plugin under the plugins directory by
// locating main files carrying a "Plugin Name" header.
func (h *LocalHost) InstalledPlugins(ctx context.Context) ([]InstalledPlugin, error) {
	entries, err := os.ReadDir(h.pluginsDir)
	if err != nil {
		return nil, fmt.Errorf("read plugins directory: %w", err)
	}

	var plugins []InstalledPlugin
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if entry.IsDir() {
			p, ok := h.scanPluginDir(entry.Name())
			if ok {
				plugins = append(plugins, p)
			}
			continue
		}

		// Single-file plugins live directly in the plugins root.
		if strings.HasSuffix(entry.Name(), ".php") {
			headers, ok := h.readHeaders(filepath.Join(h.pluginsDir, entry.Name()))
			if ok {
				plugins = append(plugins, newInstalledPlugin(entry.Name(), headers))
			}
		}
	}
	return plugins, nil
}

// scanPluginDir finds the main file of a plugin directory: the first .php
// file at its top level carrying plugin headers.
func (h *LocalHost) scanPluginDir(dir string) (InstalledPlugin, bool) {
	files, err := os.ReadDir(filepath.Join(h.pluginsDir, dir))
	if err != nil {
		return InstalledPlugin{}, false
	}

	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".php") {
			continue
		}
		headers, ok := h.readHeaders(filepath.Join(h.pluginsDir, dir, f.Name()))
		if ok {
			return newInstalledPlugin(dir+"/"+f.Name(), headers), true
		}
	}
	return InstalledPlugin{}, false
}

func newInstalledPlugin(file string, headers map[string]string) InstalledPlugin {
	return InstalledPlugin{
		File:    file,
		Name:    headers["Plugin Name"],
		Version: headers["Version"],
		Headers: headers,
	}
}

// readHeaders parses the comment header block of a plugin main file. Only
// the first headerReadLimit bytes are considered.
func (h *LocalHost) readHeaders(path string) (map[string]string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer func() { _ = f.Close() }()

	headers := make(map[string]string)
	scanner := bufio.NewScanner(io.LimitReader(f, headerReadLimit))
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimLeft(scanner.Text(), " \t*/"))
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key != "" && value != "" && isHeaderKey(key) {
			headers[key] = value
		}
	}

	if headers["Plugin Name"] == "" {
		return nil, false
	}
	return headers, true
}

var knownHeaderKeys = map[string]struct{}{
	"Plugin Name":     {},
	"Plugin URI":      {},
	"Version":         {},
	"Description":     {},
	"Author":          {},
	"Author URI":      {},
	ProjectIDHeader:   {},
	"Text Domain":     {},
	"Requires at":     {},
	"Requires PHP":    {},
	"License":         {},
	"Network":         {},
	"Update URI":      {},
	"Requires WP":     {},
	"Domain Path":     {},
	"Requires least":  {},
	"Requires Plugin": {},
}

func isHeaderKey(key string) bool {
	_, ok := knownHeaderKeys[key]
	return ok
}

// Activate records a plugin activation through the Activator hook.
func (h *LocalHost) Activate(ctx context.Context, file string, networkWide bool) error {
	if h.Activator == nil {
		return nil
	}
	return h.Activator.Activate(ctx, file, networkWide)
}

// Deactivate records a plugin deactivation through the Activator hook.
func (h *LocalHost) Deactivate(ctx context.Context, file string) error {
	if h.Activator == nil {
		return nil
	}
	return h.Activator.Deactivate(ctx, file)
}

// DeletePlugin removes a plugin's files. For directory plugins the whole
// directory goes; single-file plugins lose just the file. An already absent
// plugin is a success.
func (h *LocalHost) DeletePlugin(ctx context.Context, file string) error {
	dir, _, found := strings.Cut(file, "/")
	if found {
		return fsutil.RemoveDir(filepath.Join(h.pluginsDir, dir))
	}

	err := os.Remove(filepath.Join(h.pluginsDir, file))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete plugin %s: %w", file, err)
	}
	return nil
}

// InstallFromURL downloads a plugin archive and unpacks it into the plugins
// directory.
func (h *LocalHost) InstallFromURL(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: download returned %d", ErrUnavailable, resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "sitemedic-plugin-*.zip")
	if err != nil {
		return fmt.Errorf("create download file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("download plugin: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close download file: %w", err)
	}

	if err := fsutil.ExtractZip(tmpName, h.pluginsDir); err != nil {
		return fmt.Errorf("extract plugin: %w", err)
	}

	h.logger.Debug().Str("url", url).Msg("Plugin installed from URL")
	return nil
}
