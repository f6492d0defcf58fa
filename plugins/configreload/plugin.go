// Package configreload watches the daemon's config file for changes while
// it runs. Edits are debounced and reported through a callback; the typical
// callback logs the change or asks the operator-facing layer to restart.
package configreload

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/daemonkit/pkg/log"
)

// Config holds configuration options for the reload watcher.
type Config struct {
	// DebounceDelay is the quiet period after a file change before the
	// callback fires. Editors often produce bursts of write events.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 100 * time.Millisecond,
	}
}

// Watcher monitors a single config file. Its Stop method matches the
// daemon.ShutdownHandler signature so it can be registered with OnShutdown.
type Watcher struct {
	path          string
	debounceDelay time.Duration
	logger        log.Logger
	onChange      func(path string)

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// New creates a watcher for the config file at path. onChange is invoked
// with the path after each debounced change.
func New(path string, cfg Config, logger log.Logger, onChange func(string)) *Watcher {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	return &Watcher{
		path:          path,
		debounceDelay: cfg.DebounceDelay,
		logger:        logger,
		onChange:      onChange,
	}
}

// Start begins watching. The watch runs until Stop is called or ctx is
// canceled.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory, not the file: many editors replace the file on
	// save, which would silently drop a file-level watch.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)

	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.logger.Info("config reload watcher started", log.String("path", w.path))

	w.wg.Add(1)
	go w.watchLoop(watchCtx, watcher)

	return nil
}

// Stop ends the watch and waits for the loop to exit. The context parameter
// makes Stop usable directly as a daemon shutdown handler.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	return nil
}

// watchLoop consumes fsnotify events until the context is canceled.
func (w *Watcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer w.wg.Done()
	defer watcher.Close()

	base := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			w.stopDebounce()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleCallback()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config reload watcher error", log.Err(err))
		}
	}
}

// scheduleCallback (re)arms the debounce timer.
func (w *Watcher) scheduleCallback() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.debounceDelay, func() {
		w.logger.Info("config file changed", log.String("path", w.path))
		if w.onChange != nil {
			w.onChange(w.path)
		}
	})
}

// stopDebounce cancels a pending callback.
func (w *Watcher) stopDebounce() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
}
