// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// CONFIG FILE WATCHER
// =============================================================================

// DefaultWatchDebounce collapses the burst of events an editor emits on save.
const DefaultWatchDebounce = 150 * time.Millisecond

// ReloadFunc receives the reloaded config, or the error that prevented it.
// On error the previous config remains in effect.
type ReloadFunc func(cfg *Config, err error)

// Watch reloads path whenever it changes and passes the result to fn.
// The parent directory is watched so that editors which save through a
// rename are still seen. Watch returns once the watcher is running; it stops
// when ctx is cancelled.
func Watch(ctx context.Context, path string, fn ReloadFunc) error {
	return WatchWithDebounce(ctx, path, DefaultWatchDebounce, fn)
}

// WatchWithDebounce is Watch with an explicit debounce interval.
func WatchWithDebounce(ctx context.Context, path string, debounce time.Duration, fn ReloadFunc) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("config watch %s: %w", filepath.Dir(absPath), err)
	}

	log.Printf("CONFIG_WATCH_STARTED | path=%s", absPath)
	go runWatch(ctx, watcher, absPath, debounce, fn)
	return nil
}

func runWatch(ctx context.Context, watcher *fsnotify.Watcher, path string, debounce time.Duration, fn ReloadFunc) {
	defer watcher.Close()

	// Stopped timer; armed by each relevant event.
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("CONFIG_WATCH_STOPPED | path=%s", path)
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)

		case <-timer.C:
			cfg, err := LoadFromPath(path)
			if err != nil {
				log.Printf("CONFIG_RELOAD_FAILED | path=%s error=%v", path, err)
			} else {
				log.Printf("CONFIG_RELOADED | path=%s", path)
			}
			fn(cfg, err)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("CONFIG_WATCH_ERROR | error=%v", err)
		}
	}
}
