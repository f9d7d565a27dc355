package watcher

import (
	"path/filepath"
	"strings"

	"github.com/wb-go/wbf/zlog"
)

// launcher starts processing for a triggered dataset. Submission may block
// the event loop; tracking the resulting job must not.
type launcher interface {
	Launch(dir, dataset, token string)
}

// Dispatcher filters filesystem events down to trigger activations. A
// trigger is a file whose lowercase base name, extension stripped, matches
// a configured preset token.
type Dispatcher struct {
	tokens   map[string]struct{}
	launcher launcher
}

// NewDispatcher creates a Dispatcher recognizing the given tokens.
func NewDispatcher(tokens []string, l launcher) *Dispatcher {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[strings.ToLower(t)] = struct{}{}
	}

	return &Dispatcher{tokens: set, launcher: l}
}

// parseToken extracts the candidate token from a path: the lowercase file
// base name without its extension.
func parseToken(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

// OnCreated handles a file-created event.
func (d *Dispatcher) OnCreated(path string) {
	token := parseToken(path)
	if _, ok := d.tokens[token]; !ok {
		return
	}

	dir := filepath.Dir(path)
	dataset := filepath.Base(dir)

	zlog.Logger.Info().
		Str("dataset", dataset).
		Str("token", token).
		Msg("trigger fired")

	d.launcher.Launch(dir, dataset, token)
}

// OnMoved handles a file-renamed event. Only a rename in place counts: a
// move across directories no longer matches the origin context and is
// ignored.
func (d *Dispatcher) OnMoved(src, dst string) {
	if filepath.Dir(src) != filepath.Dir(dst) {
		return
	}

	d.OnCreated(dst)
}
