// Package preset maps trigger tokens to processing-option documents. A
// preset file <token>.preset contains the JSON options passed verbatim to
// the processing node. Tokens are enumerated once at startup; option
// documents are re-read on every activation so edits take effect on the
// next trigger.
package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const ext = ".preset"

// ErrNoPresets is returned by Scan when the preset directory contains no
// preset files at all.
var ErrNoPresets = errors.New("no preset files found")

// LoadError reports a missing or malformed preset file. It aborts a single
// activation, never the process.
type LoadError struct {
	Token string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load preset %q: %v", e.Token, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Store resolves tokens against a preset directory.
type Store struct {
	dir string
}

// NewStore creates a Store over the given preset directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Scan enumerates the recognized trigger tokens: the lowercase base names
// of all *.preset files directly inside the preset directory.
func (s *Store) Scan() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read preset dir: %w", err)
	}

	var tokens []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		tokens = append(tokens, strings.ToLower(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))))
	}

	if len(tokens) == 0 {
		return nil, ErrNoPresets
	}

	return tokens, nil
}

// Load reads the options document for a token. The document must be valid
// JSON; it is otherwise passed through untouched.
func (s *Store) Load(token string) (json.RawMessage, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, token+ext))
	if err != nil {
		return nil, &LoadError{Token: token, Err: err}
	}

	if !json.Valid(b) {
		return nil, &LoadError{Token: token, Err: errors.New("malformed options document")}
	}

	return json.RawMessage(b), nil
}
