// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Watcher polls configuration files and rebroadcasts a freshly loaded
// Config whenever one of them changes on disk. Polling avoids
// platform-specific file notification quirks; config edits happen on a
// human timescale, so a coarse interval is fine.
type Watcher struct {
	mu        sync.RWMutex
	paths     []string
	interval  time.Duration
	seen      map[string]fileStamp
	current   *Config
	listeners []func(*Config)
	logger    *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// fileStamp identifies a file revision. Size is included because editors
// that preserve mtime on save would otherwise hide a rewrite.
type fileStamp struct {
	modTime time.Time
	size    int64
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling interval for file changes.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher creates a watcher over the given paths and performs the
// initial load. The first path is the primary config file; the rest only
// contribute change detection.
func NewWatcher(paths []string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		paths:    paths,
		interval: time.Second,
		seen:     make(map[string]fileStamp),
		logger:   slog.Default(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, path := range paths {
		if stamp, ok := stat(path); ok {
			w.seen[path] = stamp
		}
	}

	cfg, err := w.load()
	if err != nil {
		return nil, err
	}
	w.current = cfg
	return w, nil
}

// OnChange registers a callback invoked with the reloaded config after
// every successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Config returns the most recently loaded configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins polling. The loop exits when ctx is canceled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) {
	go w.poll(ctx)
}

// Stop halts polling and waits for the loop to exit. Safe to call more
// than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if w.changed() {
				w.reload()
			}
		}
	}
}

// changed refreshes the stamps and reports whether any watched file moved.
// Missing files are skipped so a config swapped via rename does not abort
// the watch.
func (w *Watcher) changed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	dirty := false
	for _, path := range w.paths {
		stamp, ok := stat(path)
		if !ok {
			continue
		}
		if stamp != w.seen[path] {
			w.seen[path] = stamp
			dirty = true
		}
	}
	return dirty
}

// reload re-reads the config. A file that fails to parse keeps the
// previous config in place; the engine never runs on a half-applied
// configuration.
func (w *Watcher) reload() {
	cfg, err := w.load()
	if err != nil {
		w.logger.Error("config.reload.failed", "error", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	listeners := make([]func(*Config), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	w.logger.Info("config.reloaded", "paths", len(w.paths))
	for _, fn := range listeners {
		fn(cfg)
	}
}

func (w *Watcher) load() (*Config, error) {
	if len(w.paths) == 0 {
		return Load("")
	}
	return Load(w.paths[0])
}

func stat(path string) (fileStamp, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, false
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}, true
}

// WatchConfig builds a watcher for configPath plus any profile variants
// sitting next to it (config.dev.yaml and friends), starts it, and
// returns the watcher with the initial config.
func WatchConfig(ctx context.Context, configPath string, opts ...WatcherOption) (*Watcher, *Config, error) {
	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)
		paths = append(paths, profileVariants(configPath)...)
	}

	watcher, err := NewWatcher(paths, opts...)
	if err != nil {
		return nil, nil, err
	}
	watcher.Start(ctx)
	return watcher, watcher.Config(), nil
}

func profileVariants(configPath string) []string {
	ext := filepath.Ext(configPath)
	stem := strings.TrimSuffix(filepath.Base(configPath), ext)
	dir := filepath.Dir(configPath)

	var found []string
	for _, profile := range []string{"dev", "prod", "staging", "local"} {
		candidate := filepath.Join(dir, stem+"."+profile+ext)
		if _, ok := stat(candidate); ok {
			found = append(found, candidate)
		}
	}
	return found
}
