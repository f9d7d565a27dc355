// Package watcher delivers filesystem events from a directory tree to the
// trigger dispatcher. It wraps fsnotify, which does not watch recursively:
// the tree is walked once at startup and newly created directories are
// added to the watch set as they appear.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/wb-go/wbf/zlog"
)

// handler receives file events. Directory events are consumed by the
// watcher itself.
type handler interface {
	OnCreated(path string)
	OnMoved(src, dst string)
}

// Watcher watches a directory tree and forwards file events.
type Watcher struct {
	fsw     *fsnotify.Watcher
	root    string
	handler handler
}

// New creates a Watcher over root, watching every directory in the tree.
func New(root string, h handler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{fsw: fsw, root: root, handler: h}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}

	return w, nil
}

// addTree registers root and all of its subdirectories.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Run consumes fsnotify events until the context is cancelled. inotify
// reports a rename as a Rename event on the old path followed by a Create
// on the new one, so Run carries the last unmatched Rename path forward:
// the next Create, wherever it lands, consumes it as the rename source,
// and any other event clears it. The pairing is a heuristic: a genuine
// Create arriving right after a rename out of the tree is reported as a
// move and dropped by the dispatcher when the directories differ.
func (w *Watcher) Run(ctx context.Context) {
	var pendingRename string

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			pendingRename = w.dispatch(ev, pendingRename)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			zlog.Logger.Err(err).Msg("watcher error")
		}
	}
}

// dispatch routes one event and returns the next pending-rename path.
func (w *Watcher) dispatch(ev fsnotify.Event, pendingRename string) string {
	switch {
	case ev.Has(fsnotify.Rename):
		return ev.Name

	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			// New dataset directory; start watching it.
			if err := w.fsw.Add(ev.Name); err != nil {
				zlog.Logger.Err(err).Str("dir", ev.Name).Msg("failed to watch new directory")
			}
			return ""
		}

		if pendingRename != "" {
			w.handler.OnMoved(pendingRename, ev.Name)
			return ""
		}
		w.handler.OnCreated(ev.Name)
		return ""

	default:
		return ""
	}
}

// Close stops event delivery and releases the underlying watches.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
