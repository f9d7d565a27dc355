// Package orchestrator owns the dataset job lifecycle: launch a remote
// task for a triggered dataset, poll it to completion, download the result
// and record every outcome as a status marker. One runner goroutine and one
// downloader goroutine run per job, joined by a one-shot completion signal.
package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/fieldlab/odm-watcher/internal/model"
	"github.com/fieldlab/odm-watcher/internal/preset"
	"github.com/fieldlab/odm-watcher/internal/registry"
	"github.com/fieldlab/odm-watcher/internal/status"
)

// RemoteTask is one submitted processing task on the node.
type RemoteTask interface {
	UUID() string
	Info(ctx context.Context) (model.TaskInfo, error)
	Wait(ctx context.Context, interval time.Duration) (model.TaskInfo, error)
	Cancel(ctx context.Context) error
	DownloadZip(ctx context.Context, destDir string) (string, error)
}

// RemoteNode is the processing node the orchestrator submits work to.
type RemoteNode interface {
	CreateTask(ctx context.Context, files []string, name string, options json.RawMessage) (RemoteTask, error)
	Task(id string) RemoteTask
}

// EventPublisher pushes lifecycle transitions to a message broker.
type EventPublisher interface {
	Publish(ctx context.Context, e model.LifecycleEvent) error
}

// ArtifactArchiver mirrors a downloaded artifact to remote storage.
type ArtifactArchiver interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Orchestrator launches and tracks remote jobs for triggered datasets.
type Orchestrator struct {
	node         RemoteNode
	presets      *preset.Store
	registry     *registry.Registry
	outDir       string
	pollInterval time.Duration

	// Optional collaborators; either may be nil.
	publisher EventPublisher
	archiver  ArtifactArchiver

	wg sync.WaitGroup
}

// New creates an Orchestrator. publisher and archiver may be nil to
// disable lifecycle events and artifact mirroring.
func New(
	n RemoteNode,
	presets *preset.Store,
	reg *registry.Registry,
	outDir string,
	pollInterval time.Duration,
	publisher EventPublisher,
	archiver ArtifactArchiver,
) *Orchestrator {
	return &Orchestrator{
		node:         n,
		presets:      presets,
		registry:     reg,
		outDir:       outDir,
		pollInterval: pollInterval,
		publisher:    publisher,
		archiver:     archiver,
	}
}

// listImages enumerates the .jpg files directly inside dir, paths relative
// to the process working directory (the node client re-reads them from
// there when streaming the upload).
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".jpg") {
			continue
		}

		path := filepath.Join(dir, e.Name())
		if rel, err := filepath.Rel(cwd, path); err == nil {
			path = rel
		}
		files = append(files, path)
	}

	return files, nil
}

// Launch processes one trigger activation: enumerate the dataset's images,
// load the preset, submit the task and start the runner/downloader pair.
// It blocks for the duration of the upload and returns once the job is
// tracked (or the activation is abandoned). Errors abort only this
// activation.
func (o *Orchestrator) Launch(dir, dataset, token string) {
	files, err := listImages(dir)
	if err != nil {
		zlog.Logger.Err(err).Str("dataset", dataset).Msg("failed to list dataset images")
		return
	}
	if len(files) == 0 {
		// An empty dataset cannot be processed; the trigger is a no-op.
		return
	}

	if status.Exists(dir, status.Running) {
		zlog.Logger.Warn().
			Str("dataset", dataset).
			Str("token", token).
			Msg("dataset already has a job in flight, trigger ignored")
		return
	}

	options, err := o.presets.Load(token)
	if err != nil {
		zlog.Logger.Err(err).Str("dataset", dataset).Msg("failed to load preset")
		return
	}

	ctx := context.Background()

	task, err := o.node.CreateTask(ctx, files, dataset, options)
	if err != nil {
		zlog.Logger.Err(err).Str("dataset", dataset).Msg("failed to submit task")
		if werr := status.Write(dir, status.UploadFailed, err.Error()); werr != nil {
			zlog.Logger.Err(werr).Str("dataset", dataset).Msg("failed to write upload-failed marker")
		}
		o.publish(ctx, dataset, "", string(status.UploadFailed), err.Error())
		o.removeTrigger(dir, token)
		return
	}

	id := task.UUID()
	zlog.Logger.Info().
		Str("dataset", dataset).
		Str("uuid", id).
		Int("images", len(files)).
		Msg("task submitted")

	done := make(chan struct{})

	o.wg.Add(1)
	go o.runTask(task, done)

	if err := status.Write(dir, status.Running, id); err != nil {
		zlog.Logger.Err(err).Str("dataset", dataset).Msg("failed to write running marker")
	}
	o.publish(ctx, dataset, id, string(status.Running), "")
	o.removeTrigger(dir, token)

	o.wg.Add(1)
	go o.downloadAssets(task, done, dir, dataset)
}

// removeTrigger clears the per-token trigger file so a later trigger can
// re-arm the dataset.
func (o *Orchestrator) removeTrigger(dir, token string) {
	if err := status.RemoveFile(dir, token); err != nil {
		zlog.Logger.Err(err).Str("dir", dir).Msg("failed to remove trigger file")
	}
}

// runTask polls the job until it reaches a terminal state. Whatever the
// outcome it deregisters the job and fires the completion signal; the
// downloader decides the marker to write.
func (o *Orchestrator) runTask(task RemoteTask, done chan struct{}) {
	defer o.wg.Done()
	defer close(done)

	id := task.UUID()
	o.registry.Add(id)
	defer o.registry.Remove(id)

	if _, err := task.Wait(context.Background(), o.pollInterval); err != nil {
		zlog.Logger.Err(err).Str("uuid", id).Msg("task did not complete")
	}
}

// downloadAssets waits for the runner's completion signal, then resolves
// the job's final disposition exactly once. Every path out of here leaves a
// terminal marker in the dataset directory and removes the transient
// running marker.
func (o *Orchestrator) downloadAssets(task RemoteTask, done <-chan struct{}, dir, dataset string) {
	defer o.wg.Done()

	<-done

	ctx := context.Background()
	id := task.UUID()

	defer func() {
		if err := status.Remove(dir, status.Running); err != nil {
			zlog.Logger.Err(err).Str("dataset", dataset).Msg("failed to remove running marker")
		}
	}()

	info, err := task.Info(ctx)
	if err != nil {
		zlog.Logger.Err(err).Str("uuid", id).Msg("failed to query final task status")
		o.writeTerminal(ctx, dir, dataset, id, status.Failed, err.Error())
		return
	}

	switch info.Status {
	case model.StatusCompleted:
		path, err := o.fetchArtifact(ctx, task, dataset)
		if err != nil {
			zlog.Logger.Err(err).Str("uuid", id).Msg("failed to download result")
			o.writeTerminal(ctx, dir, dataset, id, status.Failed, err.Error())
			return
		}
		zlog.Logger.Info().
			Str("dataset", dataset).
			Str("uuid", id).
			Str("artifact", path).
			Msg("result downloaded")
		o.writeTerminal(ctx, dir, dataset, id, status.DownloadCompleted, path)

	case model.StatusFailed:
		o.writeTerminal(ctx, dir, dataset, id, status.Failed, info.LastError)

	case model.StatusCanceled:
		o.writeTerminal(ctx, dir, dataset, id, status.Canceled, id)

	default:
		// The runner exited without a terminal state: an orphaned job.
		// Reclaim it on the node before marking it canceled.
		if err := task.Cancel(ctx); err != nil {
			zlog.Logger.Err(err).Str("uuid", id).Msg("failed to cancel orphaned task")
		}
		o.writeTerminal(ctx, dir, dataset, id, status.Canceled, id)
	}
}

// fetchArtifact downloads the result archive and renames it so the job
// identifier in its name is replaced by the dataset name.
func (o *Orchestrator) fetchArtifact(ctx context.Context, task RemoteTask, dataset string) (string, error) {
	path, err := task.DownloadZip(ctx, o.outDir)
	if err != nil {
		return "", err
	}

	renamed := filepath.Join(
		filepath.Dir(path),
		strings.Replace(filepath.Base(path), task.UUID(), dataset, 1),
	)
	if err := os.Rename(path, renamed); err != nil {
		return "", err
	}

	if o.archiver != nil {
		if loc, err := o.archiver.Upload(ctx, renamed); err != nil {
			zlog.Logger.Err(err).Str("artifact", renamed).Msg("failed to archive artifact")
		} else {
			zlog.Logger.Info().Str("object", loc).Msg("artifact archived")
		}
	}

	return renamed, nil
}

// writeTerminal writes a terminal marker and publishes the matching
// lifecycle event. The marker is the authoritative channel; a write
// failure is logged but cannot be recovered into anything better.
func (o *Orchestrator) writeTerminal(ctx context.Context, dir, dataset, id string, s status.State, body string) {
	if err := status.Write(dir, s, body); err != nil {
		zlog.Logger.Err(err).
			Str("dataset", dataset).
			Str("state", string(s)).
			Msg("failed to write terminal marker")
	}
	o.publish(ctx, dataset, id, string(s), body)
}

// publish sends a lifecycle event when a publisher is configured. Publish
// failures never affect marker handling.
func (o *Orchestrator) publish(ctx context.Context, dataset, id, state, detail string) {
	if o.publisher == nil {
		return
	}

	e := model.LifecycleEvent{
		Dataset: dataset,
		UUID:    id,
		State:   state,
		Detail:  detail,
		Time:    time.Now().UTC(),
	}
	if err := o.publisher.Publish(ctx, e); err != nil {
		zlog.Logger.Err(err).Str("dataset", dataset).Msg("failed to publish lifecycle event")
	}
}

// CancelAll requests cancellation of every job currently in the registry,
// pausing between requests so the in-flight runner/downloader pairs can
// observe the cancellation and write their own terminal markers. Per-job
// failures are logged and do not stop the loop.
func (o *Orchestrator) CancelAll(ctx context.Context) {
	snapshot := o.registry.Snapshot()
	if len(snapshot) == 0 {
		return
	}

	zlog.Logger.Info().Int("jobs", len(snapshot)).Msg("cancelling running tasks")

	for _, id := range snapshot {
		if err := o.node.Task(id).Cancel(ctx); err != nil {
			zlog.Logger.Err(err).Str("uuid", id).Msg("failed to cancel task")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(o.pollInterval):
		}
	}
}

// Wait blocks until every runner and downloader has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
