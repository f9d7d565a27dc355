// Package status writes the TASK_<STATE> marker files that record a
// dataset's lifecycle on disk. Markers are the externally visible outcome
// channel: tools watching a dataset directory read them instead of logs.
package status

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// State names a dataset lifecycle marker.
type State string

const (
	Running           State = "RUNNING"
	UploadFailed      State = "UPLOAD_FAILED"
	Failed            State = "FAILED"
	Canceled          State = "CANCELED"
	DownloadCompleted State = "DOWNLOAD_COMPLETED"
)

const markerPrefix = "TASK_"

// MarkerName returns the marker file name for a state, e.g. TASK_RUNNING.
func MarkerName(s State) string {
	return markerPrefix + string(s)
}

// Write records the state in the dataset directory. The body is a single
// line (job uuid, error text or artifact path). The marker is written to a
// temporary file and renamed into place so a concurrent reader never
// observes a truncated body, and is left world-writable so operators can
// remove it by hand.
func Write(dir string, s State, body string) error {
	dst := filepath.Join(dir, MarkerName(s))

	tmp, err := os.CreateTemp(dir, "."+MarkerName(s)+".*")
	if err != nil {
		return fmt.Errorf("create marker temp file: %w", err)
	}

	if _, err := fmt.Fprintln(tmp, strings.TrimRight(body, "\n")); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write marker body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close marker temp file: %w", err)
	}

	if err := os.Chmod(tmp.Name(), 0o777); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("chmod marker: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename marker into place: %w", err)
	}

	return nil
}

// Read returns the marker body with the trailing newline stripped.
func Read(dir string, s State) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, MarkerName(s)))
	if err != nil {
		return "", fmt.Errorf("read marker: %w", err)
	}

	return strings.TrimRight(string(b), "\n"), nil
}

// Exists reports whether the marker file is present.
func Exists(dir string, s State) bool {
	_, err := os.Stat(filepath.Join(dir, MarkerName(s)))
	return err == nil
}

// Remove deletes the marker file. A missing marker is not an error.
func Remove(dir string, s State) error {
	err := os.Remove(filepath.Join(dir, MarkerName(s)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove marker: %w", err)
	}

	return nil
}

// RemoveFile deletes an arbitrary file inside the dataset directory,
// tolerating absence. Used to clear the trigger file once a launch has
// been accepted or rejected.
func RemoveFile(dir, name string) error {
	err := os.Remove(filepath.Join(dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}

	return nil
}
