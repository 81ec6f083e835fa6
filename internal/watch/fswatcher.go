package watch

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Handler receives the same three events a client's
// workspace/didChangeWatchedFiles notification would carry, so the
// headless CLI watch mode can drive serverstate.State through the
// identical transitions a real editor triggers.
type Handler interface {
	OnCreate(path string) error
	OnChange(path string) error
	OnDelete(path string) error
}

// Watcher drives Handler from real filesystem events under a set of
// workspace roots, for use without an LSP client attached.
type Watcher struct {
	fsw *fsnotify.Watcher
}

// NewWatcher creates a Watcher and recursively adds every directory
// under each root (fsnotify watches directories, not subtrees).
func NewWatcher(roots []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fsw: fsw}
	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }

// Run blocks dispatching events to h until ctx is done or the watcher's
// event channel closes. A newly created directory is added to the
// watch set on the fly so files created inside it are also observed.
func (w *Watcher) Run(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if err := w.dispatch(ev, h); err != nil {
				return err
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}
}

func (w *Watcher) dispatch(ev fsnotify.Event, h Handler) error {
	switch {
	case ev.Op&fsnotify.Create != 0:
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			return w.addTree(ev.Name)
		}
		return h.OnCreate(ev.Name)
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		return h.OnDelete(ev.Name)
	case ev.Op&fsnotify.Write != 0:
		return h.OnChange(ev.Name)
	}
	return nil
}
