// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package watch re-runs a callback when workflow files change on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc is called once per debounced change with the absolute path of
// the file that changed.
type ChangeFunc func(path string)

// Watcher monitors a set of files for changes.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	onChange  ChangeFunc
	logger    *slog.Logger
	debounce  time.Duration

	// files holds the absolute paths being watched. Their parent
	// directories are what fsnotify sees, so editors that save by
	// rename are still noticed.
	files   map[string]struct{}
	dirs    map[string]int
	pending map[string]*time.Timer
	mu      sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config configures the file watcher.
type Config struct {
	// OnChange is called for every debounced change. Required.
	OnChange ChangeFunc

	// Logger is used for structured logging (optional)
	Logger *slog.Logger

	// Debounce is the quiet period before OnChange fires (defaults to 200ms)
	Debounce time.Duration
}

// New creates a watcher and starts its event loop.
func New(cfg Config) (*Watcher, error) {
	if cfg.OnChange == nil {
		return nil, fmt.Errorf("change callback is required")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		fsWatcher: fsWatcher,
		onChange:  cfg.OnChange,
		logger:    logger,
		debounce:  debounce,
		files:     make(map[string]struct{}),
		dirs:      make(map[string]int),
		pending:   make(map[string]*time.Timer),
		ctx:       ctx,
		cancel:    cancel,
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

// Add starts watching path.
func (w *Watcher) Add(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.files[absPath]; ok {
		return nil
	}
	dir := filepath.Dir(absPath)
	if w.dirs[dir] == 0 {
		if err := w.fsWatcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[absPath] = struct{}{}

	w.logger.Debug("watching workflow file", "path", absPath)
	return nil
}

// Remove stops watching path.
func (w *Watcher) Remove(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.files[absPath]; !ok {
		return nil
	}
	delete(w.files, absPath)
	if timer, ok := w.pending[absPath]; ok {
		timer.Stop()
		delete(w.pending, absPath)
	}

	dir := filepath.Dir(absPath)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		return w.fsWatcher.Remove(dir)
	}
	return nil
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule(event.Name)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) schedule(name string) {
	absPath, err := filepath.Abs(name)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.files[absPath]; !ok {
		return
	}
	if timer, ok := w.pending[absPath]; ok {
		timer.Stop()
	}
	w.pending[absPath] = time.AfterFunc(w.debounce, func() {
		w.fire(absPath)
	})
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	_, watched := w.files[path]
	w.mu.Unlock()

	if !watched || w.ctx.Err() != nil {
		return
	}
	w.logger.Debug("workflow file changed", "path", path)
	w.onChange(path)
}

// Close shuts down the watcher. Pending callbacks are dropped.
func (w *Watcher) Close() error {
	w.cancel()

	w.mu.Lock()
	for _, timer := range w.pending {
		timer.Stop()
	}
	w.pending = make(map[string]*time.Timer)
	w.mu.Unlock()

	w.wg.Wait()
	return w.fsWatcher.Close()
}
