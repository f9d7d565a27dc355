// Package node is a client for a NodeODM-compatible processing node. It
// covers the slice of the REST surface the watcher needs: the info probe,
// task submission, status polling, cancellation and result download.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldlab/odm-watcher/internal/model"
)

// ErrNodeUnreachable wraps transport-level failures talking to the node.
var ErrNodeUnreachable = errors.New("processing node unreachable")

// ErrTaskFailed is returned by Task.Wait when the remote task reports
// FAILED. The node's error message is attached by wrapping.
var ErrTaskFailed = errors.New("remote task failed")

// Client talks to one processing node.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// New creates a Client for the node at host:port. The token, when
// non-empty, is sent as the node's auth query parameter on every request.
func New(host string, port int, token string, useSSL bool) *Client {
	scheme := "http"
	if useSSL {
		scheme = "https"
	}

	// No client-wide timeout: uploads and downloads can legitimately take
	// a long time. Callers bound requests through their context.
	return &Client{
		baseURL: fmt.Sprintf("%s://%s:%d", scheme, host, port),
		token:   token,
		httpc:   &http.Client{},
	}
}

// endpoint builds a request URL with the auth token attached.
func (c *Client) endpoint(path string) string {
	u := c.baseURL + path
	if c.token != "" {
		u += "?" + url.Values{"token": {c.token}}.Encode()
	}

	return u
}

// apiError is the error envelope the node returns with non-2xx statuses
// and, on some endpoints, with 200s.
type apiError struct {
	Error string `json:"error"`
}

// decode reads a node response into out, surfacing the node's error
// envelope when present.
func decode(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("node error: %s", apiErr.Error)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("node returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// Info probes the node for its engine description and admission limits.
func (c *Client) Info(ctx context.Context) (model.NodeInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/info"), nil)
	if err != nil {
		return model.NodeInfo{}, fmt.Errorf("build info request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return model.NodeInfo{}, fmt.Errorf("%w: %w", ErrNodeUnreachable, err)
	}

	var info model.NodeInfo
	if err := decode(resp, &info); err != nil {
		return model.NodeInfo{}, fmt.Errorf("info: %w", err)
	}

	return info, nil
}

// CreateTask submits the given image files as one processing task. Options
// is the preset document, forwarded verbatim. Returns a handle for the
// server-assigned task.
func (c *Client) CreateTask(ctx context.Context, files []string, name string, options json.RawMessage) (*Task, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeTaskForm(mw, files, name, options))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/task/new"), pr)
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNodeUnreachable, err)
	}

	var created struct {
		UUID string `json:"uuid"`
	}
	if err := decode(resp, &created); err != nil {
		return nil, fmt.Errorf("submit task: %w", err)
	}
	if _, err := uuid.Parse(created.UUID); err != nil {
		return nil, fmt.Errorf("submit task: node returned invalid uuid %q: %w", created.UUID, err)
	}

	return &Task{client: c, uuid: created.UUID}, nil
}

// writeTaskForm streams the multipart body: one "images" part per file,
// plus the task name and the options document.
func writeTaskForm(mw *multipart.Writer, files []string, name string, options json.RawMessage) error {
	defer mw.Close()

	if err := mw.WriteField("name", name); err != nil {
		return fmt.Errorf("write name field: %w", err)
	}
	if err := mw.WriteField("options", string(options)); err != nil {
		return fmt.Errorf("write options field: %w", err)
	}

	for _, path := range files {
		part, err := mw.CreateFormFile("images", filepath.Base(path))
		if err != nil {
			return fmt.Errorf("create form file: %w", err)
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open image %s: %w", path, err)
		}
		_, err = io.Copy(part, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("stream image %s: %w", path, err)
		}
	}

	return nil
}

// Task returns a handle for an already-submitted task identified by uuid.
// Used at shutdown to cancel jobs known only by identifier.
func (c *Client) Task(id string) *Task {
	return &Task{client: c, uuid: id}
}

// Task is a handle on one remote processing task.
type Task struct {
	client *Client
	uuid   string
}

// UUID returns the server-assigned task identifier.
func (t *Task) UUID() string { return t.uuid }

// Info fetches the task's current status snapshot.
func (t *Task) Info(ctx context.Context) (model.TaskInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.client.endpoint("/task/"+t.uuid+"/info"), nil)
	if err != nil {
		return model.TaskInfo{}, fmt.Errorf("build task info request: %w", err)
	}

	resp, err := t.client.httpc.Do(req)
	if err != nil {
		return model.TaskInfo{}, fmt.Errorf("%w: %w", ErrNodeUnreachable, err)
	}

	var raw struct {
		UUID        string  `json:"uuid"`
		Name        string  `json:"name"`
		Progress    float64 `json:"progress"`
		ImagesCount int     `json:"imagesCount"`
		Status      struct {
			Code         int    `json:"code"`
			ErrorMessage string `json:"errorMessage"`
		} `json:"status"`
	}
	if err := decode(resp, &raw); err != nil {
		return model.TaskInfo{}, fmt.Errorf("task info: %w", err)
	}

	return model.TaskInfo{
		UUID:        raw.UUID,
		Name:        raw.Name,
		Status:      model.StatusFromCode(raw.Status.Code),
		LastError:   raw.Status.ErrorMessage,
		Progress:    raw.Progress,
		ImagesCount: raw.ImagesCount,
	}, nil
}

// Wait polls the task at the given interval until it reaches a terminal
// state. It returns the terminal snapshot; a FAILED task yields ErrTaskFailed
// wrapped with the node's error message. Context cancellation aborts the
// wait, not the remote task.
func (t *Task) Wait(ctx context.Context, interval time.Duration) (model.TaskInfo, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		info, err := t.Info(ctx)
		if err != nil {
			return model.TaskInfo{}, err
		}

		if info.Status.Terminal() {
			if info.Status == model.StatusFailed {
				return info, fmt.Errorf("%w: %s", ErrTaskFailed, info.LastError)
			}
			return info, nil
		}

		select {
		case <-ctx.Done():
			return info, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cancel asks the node to cancel the task.
func (t *Task) Cancel(ctx context.Context) error {
	form := url.Values{"uuid": {t.uuid}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.client.endpoint("/task/cancel"), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build cancel request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNodeUnreachable, err)
	}

	var result struct {
		Success bool `json:"success"`
	}
	if err := decode(resp, &result); err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("cancel task %s: node refused", t.uuid)
	}

	return nil
}

// DownloadZip streams the task's result archive into destDir as
// <uuid>.zip and returns the written path.
func (t *Task) DownloadZip(ctx context.Context, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.client.endpoint("/task/"+t.uuid+"/download/all.zip"), nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}

	resp, err := t.client.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNodeUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download: node returned status %d", resp.StatusCode)
	}

	dst := filepath.Join(destDir, t.uuid+".zip")
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("stream archive: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("close archive file: %w", err)
	}

	return dst, nil
}
