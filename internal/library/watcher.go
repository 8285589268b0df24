package library

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes the library root and flips a dirty flag whenever anything
// under it changes. The cached-items read path consumes the flag to decide
// whether a fresh local scan is needed. The flag starts dirty so the first
// read always scans.
type Watcher struct {
	root    string
	logger  *slog.Logger
	fsw     *fsnotify.Watcher
	dirty   atomic.Bool
	stopped chan struct{}
}

// NewWatcher creates a Watcher over the library root and starts its event
// loop. The root is created when it does not exist yet (fsnotify cannot
// watch a missing directory). Callers must Close the watcher to release the
// loop goroutine.
func NewWatcher(root string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(root, taskDirPermissions); err != nil {
		return nil, fmt.Errorf("creating library root %s: %w", root, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}

	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", root, err)
	}

	w := &Watcher{
		root:    root,
		logger:  logger,
		fsw:     fsw,
		stopped: make(chan struct{}),
	}
	w.dirty.Store(true)

	go w.run()

	return w, nil
}

// run processes watch events until Close shuts the fsnotify channels.
func (w *Watcher) run() {
	defer close(w.stopped)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			w.handleEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

			w.logger.Warn("library watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	// Mode changes alone do not affect scan results.
	if ev.Op == fsnotify.Chmod {
		return
	}

	w.dirty.Store(true)

	// Task directories appear after the root watch was registered; add them
	// so artifact writes inside are seen too.
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(ev.Name); err != nil {
				w.logger.Debug("failed to watch new task directory",
					"path", ev.Name, "error", err)
			}
		}
	}
}

// Dirty reports whether a change happened since the last ConsumeDirty.
func (w *Watcher) Dirty() bool {
	return w.dirty.Load()
}

// ConsumeDirty atomically reads and clears the dirty flag.
func (w *Watcher) ConsumeDirty() bool {
	return w.dirty.Swap(false)
}

// MarkDirty forces the next cached read to rescan, used after local writes
// that race the filesystem watcher.
func (w *Watcher) MarkDirty() {
	w.dirty.Store(true)
}

// Close stops the underlying filesystem watcher and waits for the event loop
// to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.stopped

	return err
}
