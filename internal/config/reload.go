package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/pixoo/daemon/internal/log"
)

// Holder holds configuration with atomic hot-reload, grounded on the
// teacher's internal/config.ConfigHolder: either the full config is
// valid and swapped in, or the previous config is kept unchanged.
type Holder struct {
	reloadOpMu sync.Mutex
	snapshot   atomic.Pointer[AppConfig]
	loader     *Loader
	configPath string
	configDir  string
	configFile string
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger

	listenersMu sync.RWMutex
	listeners   []chan<- AppConfig
}

// NewHolder wraps an already-loaded config for atomic access and
// reload.
func NewHolder(initial AppConfig, loader *Loader, configPath string) *Holder {
	h := &Holder{
		loader:     loader,
		configPath: configPath,
		logger:     log.WithComponent("config"),
	}
	h.snapshot.Store(&initial)
	return h
}

// Get returns the current configuration (thread-safe read).
func (h *Holder) Get() AppConfig {
	if cfg := h.snapshot.Load(); cfg != nil {
		return *cfg
	}
	return AppConfig{}
}

// Subscribe registers a channel notified with the new config on every
// successful reload. The channel must not block the sender.
func (h *Holder) Subscribe(ch chan<- AppConfig) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notify(cfg AppConfig) {
	h.listenersMu.RLock()
	defer h.listenersMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().Msg("reload listener channel full, dropping notification")
		}
	}
}

// Reload re-reads the config file and environment, validates the
// result, and only swaps it in on success.
func (h *Holder) Reload(_ context.Context) error {
	h.reloadOpMu.Lock()
	defer h.reloadOpMu.Unlock()

	h.logger.Info().Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}

	h.snapshot.Store(&newCfg)
	h.notify(newCfg)
	h.logger.Info().Msg("configuration reloaded successfully")
	return nil
}

// StartWatcher watches the config file's directory for atomic
// replace/write/create/rename events (vim, nano, tmp+rename) and
// triggers Reload, debounced to absorb rapid successive writes. A
// no-op if no config path was configured (env-only deployments).
func (h *Holder) StartWatcher(ctx context.Context) error {
	if h.configPath == "" {
		h.logger.Info().Msg("config file watcher disabled (env-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher
	h.configDir = filepath.Dir(h.configPath)
	h.configFile = filepath.Base(h.configPath)

	if err := watcher.Add(h.configDir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	h.logger.Info().Str("path", h.configPath).Msg("watching config file for changes")
	go h.watchLoop(ctx)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context) {
	const debounce = 500 * time.Millisecond
	var timer *time.Timer

	defer func() {
		if h.watcher != nil {
			_ = h.watcher.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("config watcher stopped")
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if h.configFile != "" && filepath.Base(event.Name) != h.configFile {
				continue
			}
			if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if err := h.Reload(ctx); err != nil {
					h.logger.Error().Err(err).Msg("config reload failed, keeping previous configuration")
				}
			})

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("config watcher error")
		}
	}
}
