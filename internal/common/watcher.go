package common

import (
	"fmt"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/ternarybob/arbor"
)

// ConfigWatcher holds the live configuration snapshot and swaps it when
// the file changes on disk. Callers read through Current() and must not
// retain the returned pointer across stage boundaries.
type ConfigWatcher struct {
	current  atomic.Pointer[Config]
	path     string
	watcher  *fsnotify.Watcher
	logger   arbor.ILogger
	onReload []func(*Config)
	done     chan struct{}
}

// NewConfigWatcher creates a watcher seeded with an already-loaded config.
// If path is empty the watcher is a static holder and Watch is a no-op.
func NewConfigWatcher(initial *Config, path string, logger arbor.ILogger) *ConfigWatcher {
	w := &ConfigWatcher{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
	}
	w.current.Store(initial)
	return w
}

// Current returns the live configuration snapshot
func (w *ConfigWatcher) Current() *Config {
	return w.current.Load()
}

// OnReload registers a callback invoked with each successfully reloaded config
func (w *ConfigWatcher) OnReload(fn func(*Config)) {
	w.onReload = append(w.onReload, fn)
}

// Watch starts watching the config file for changes
func (w *ConfigWatcher) Watch() error {
	if w.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Add(w.path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config file %s: %w", w.path, err)
	}
	w.watcher = watcher

	go w.loop()

	w.logger.Info().Str("path", w.path).Msg("Config hot reload enabled")
	return nil
}

func (w *ConfigWatcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

// reload parses the file again; a broken file keeps the previous snapshot
func (w *ConfigWatcher) reload() {
	config, err := LoadFromFiles(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("Config reload rejected, keeping previous snapshot")
		return
	}

	w.current.Store(config)
	w.logger.Info().Str("path", w.path).Msg("Configuration reloaded")

	for _, fn := range w.onReload {
		fn(config)
	}
}

// Close stops the watcher
func (w *ConfigWatcher) Close() error {
	close(w.done)
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
