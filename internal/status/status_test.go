package status_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldlab/odm-watcher/internal/status"
)

func TestMarkerName(t *testing.T) {
	assert.Equal(t, "TASK_RUNNING", status.MarkerName(status.Running))
	assert.Equal(t, "TASK_DOWNLOAD_COMPLETED", status.MarkerName(status.DownloadCompleted))
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, status.Write(dir, status.Running, "c7a9e4ce-7716-4b9d-b3c9-1b4a1f4e8b2f"))

	body, err := status.Read(dir, status.Running)
	require.NoError(t, err)
	assert.Equal(t, "c7a9e4ce-7716-4b9d-b3c9-1b4a1f4e8b2f", body)

	raw, err := os.ReadFile(filepath.Join(dir, "TASK_RUNNING"))
	require.NoError(t, err)
	assert.Equal(t, "c7a9e4ce-7716-4b9d-b3c9-1b4a1f4e8b2f\n", string(raw))
}

func TestWriteOverwrites(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, status.Write(dir, status.Failed, "first error"))
	require.NoError(t, status.Write(dir, status.Failed, "second error"))

	body, err := status.Read(dir, status.Failed)
	require.NoError(t, err)
	assert.Equal(t, "second error", body)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, status.Write(dir, status.Canceled, "uuid"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "TASK_CANCELED", entries[0].Name())
}

func TestConcurrentWritersNeverTruncate(t *testing.T) {
	dir := t.TempDir()
	bodies := []string{
		"e502439c-2748-4b22-556c-1c6bd7c02adf",
		"another job identifier body",
		"a longer body describing an error in some detail for this test",
	}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = status.Write(dir, status.Running, bodies[i%len(bodies)])
		}(i)
	}
	wg.Wait()

	body, err := status.Read(dir, status.Running)
	require.NoError(t, err)
	assert.Contains(t, bodies, body, "reader must observe one complete body, never a truncation")
}

func TestExists(t *testing.T) {
	dir := t.TempDir()

	assert.False(t, status.Exists(dir, status.Running))
	require.NoError(t, status.Write(dir, status.Running, "uuid"))
	assert.True(t, status.Exists(dir, status.Running))
}

func TestRemoveToleratesMissing(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, status.Remove(dir, status.Running))

	require.NoError(t, status.Write(dir, status.Running, "uuid"))
	require.NoError(t, status.Remove(dir, status.Running))
	assert.False(t, status.Exists(dir, status.Running))
}

func TestRemoveFile(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ortho"), nil, 0o644))
	require.NoError(t, status.RemoveFile(dir, "ortho"))
	assert.NoFileExists(t, filepath.Join(dir, "ortho"))

	assert.NoError(t, status.RemoveFile(dir, "ortho"), "removing a missing trigger is not an error")
}
