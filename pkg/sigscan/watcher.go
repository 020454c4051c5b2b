package sigscan

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Provider holds the current signature set behind an atomic pointer so the
// set can be hot-swapped while scans are running. Scans grab the set once at
// start; an in-flight scan keeps using the set it started with.
type Provider struct {
	path    string
	current atomic.Pointer[Set]
}

// NewProvider loads the signature set from path (empty path = embedded
// defaults) and returns a provider ready for hot reload.
func NewProvider(path string) (*Provider, error) {
	set, err := LoadSet(path)
	if err != nil {
		return nil, err
	}
	p := &Provider{path: path}
	p.current.Store(set)
	return p, nil
}

// Set returns the current signature set.
func (p *Provider) Set() *Set {
	return p.current.Load()
}

// Reload re-reads the signature file and swaps the set in. A file that no
// longer parses leaves the previous set active.
func (p *Provider) Reload() error {
	set, err := LoadSet(p.path)
	if err != nil {
		return err
	}
	p.current.Store(set)
	return nil
}

// SetWatcher reloads the provider when the signature file changes on disk.
// Rapid successive writes are debounced into a single reload.
type SetWatcher struct {
	provider      *Provider
	watcher       *fsnotify.Watcher
	debounceDelay time.Duration
	logger        zerolog.Logger

	mu            sync.Mutex
	debounceTimer *time.Timer
}

// NewSetWatcher creates a watcher for the provider's signature file. The
// provider must have been built from a real file, not the embedded set.
func NewSetWatcher(provider *Provider) (*SetWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &SetWatcher{
		provider:      provider,
		watcher:       watcher,
		debounceDelay: 100 * time.Millisecond,
		logger:        log.With().Str("component", "sigscan.watcher").Logger(),
	}, nil
}

// Start blocks watching the signature file until the context is canceled.
// Run it in its own goroutine.
func (w *SetWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.provider.path)
	file := filepath.Base(w.provider.path)

	// fsnotify watches directories, not files.
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Error().Err(err).Str("dir", dir).Msg("Failed to watch signature directory")
		return err
	}
	w.logger.Info().Str("file", w.provider.path).Msg("Watching signature file")

	defer func() {
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("Error closing watcher")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != file {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				w.logger.Debug().Str("op", event.Op.String()).Msg("Signature file changed")
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (w *SetWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, func() {
		if err := w.provider.Reload(); err != nil {
			w.logger.Error().Err(err).Msg("Failed to reload signatures")
			return
		}
		w.logger.Info().Int("signatures", w.provider.Set().Len()).Msg("Signatures reloaded")
	})
}

// Close stops the watcher and releases resources.
func (w *SetWatcher) Close() error {
	return w.watcher.Close()
}
