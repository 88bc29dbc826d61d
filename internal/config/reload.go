// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cityops/data-api/internal/log"
)

// Holder keeps the current configuration and supports hot reload from the
// config file. Only a safe subset of fields is applied at runtime (log
// level, rate limits); everything else requires a restart.
type Holder struct {
	mu        sync.RWMutex
	cfg       Config
	loader    *Loader
	path      string
	callbacks []func(Config)
}

// NewHolder wraps an already loaded configuration.
func NewHolder(cfg Config, loader *Loader, path string) *Holder {
	return &Holder{cfg: cfg, loader: loader, path: path}
}

// Current returns a copy of the active configuration.
func (h *Holder) Current() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// OnReload registers a callback invoked with the new configuration after a
// successful reload.
func (h *Holder) OnReload(fn func(Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = append(h.callbacks, fn)
}

// Reload re-runs the loader and swaps in the new configuration. Invalid
// configs are rejected and the active config stays untouched.
func (h *Holder) Reload(ctx context.Context) error {
	cfg, err := h.loader.Load()
	if err != nil {
		log.FromContext(ctx).Error().Err(err).Str("event", "config.reload_failed").Msg("keeping previous configuration")
		return err
	}

	h.mu.Lock()
	h.cfg = cfg
	callbacks := make([]func(Config), len(h.callbacks))
	copy(callbacks, h.callbacks)
	h.mu.Unlock()

	log.SetLevel(cfg.LogLevel)
	for _, fn := range callbacks {
		fn(cfg)
	}

	log.FromContext(ctx).Info().Str("event", "config.reloaded").Str("path", h.path).Msg("configuration reloaded")
	return nil
}

// Watch monitors the config file for changes and triggers Reload. It blocks
// until ctx is cancelled. Editors often replace files via rename, so the
// parent directory is watched and events are debounced.
func (h *Holder) Watch(ctx context.Context) error {
	if h.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	logger := log.WithComponent("config")
	var debounce *time.Timer
	target := filepath.Clean(h.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, func() {
				if err := h.Reload(ctx); err != nil {
					logger.Warn().Err(err).Msg("hot reload rejected")
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}
