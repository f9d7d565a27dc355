package watcher

import (
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
)

// recordingHandler captures delivered events.
type recordingHandler struct {
	created []string
	moved   [][2]string
}

func (h *recordingHandler) OnCreated(path string)   { h.created = append(h.created, path) }
func (h *recordingHandler) OnMoved(src, dst string) { h.moved = append(h.moved, [2]string{src, dst}) }

func TestDispatchCreate(t *testing.T) {
	h := &recordingHandler{}
	w := &Watcher{handler: h}

	pending := w.dispatch(fsnotify.Event{Name: "/data/site1/ortho.token", Op: fsnotify.Create}, "")

	assert.Empty(t, pending)
	assert.Equal(t, []string{"/data/site1/ortho.token"}, h.created)
	assert.Empty(t, h.moved)
}

func TestDispatchRenamePair(t *testing.T) {
	h := &recordingHandler{}
	w := &Watcher{handler: h}

	// A rename arrives as Rename(old) then Create(new).
	pending := w.dispatch(fsnotify.Event{Name: "/data/site1/old.tmp", Op: fsnotify.Rename}, "")
	assert.Equal(t, "/data/site1/old.tmp", pending)

	pending = w.dispatch(fsnotify.Event{Name: "/data/site1/ortho.token", Op: fsnotify.Create}, pending)
	assert.Empty(t, pending)
	assert.Equal(t, [][2]string{{"/data/site1/old.tmp", "/data/site1/ortho.token"}}, h.moved)
	assert.Empty(t, h.created)
}

func TestDispatchPairsCreateAcrossDirectories(t *testing.T) {
	h := &recordingHandler{}
	w := &Watcher{handler: h}

	// The pairing keys on event order, not location: a Create in another
	// directory still consumes the pending rename as a move.
	pending := w.dispatch(fsnotify.Event{Name: "/data/site1/old.tmp", Op: fsnotify.Rename}, "")
	pending = w.dispatch(fsnotify.Event{Name: "/data/site2/ortho.token", Op: fsnotify.Create}, pending)

	assert.Empty(t, pending)
	assert.Equal(t, [][2]string{{"/data/site1/old.tmp", "/data/site2/ortho.token"}}, h.moved)
	assert.Empty(t, h.created)
}

func TestDispatchWriteClearsPendingRename(t *testing.T) {
	h := &recordingHandler{}
	w := &Watcher{handler: h}

	pending := w.dispatch(fsnotify.Event{Name: "/data/site1/old.tmp", Op: fsnotify.Rename}, "")
	pending = w.dispatch(fsnotify.Event{Name: "/data/site1/img.jpg", Op: fsnotify.Write}, pending)

	assert.Empty(t, pending, "a non-create event drops the unmatched rename")
	assert.Empty(t, h.moved)
}
