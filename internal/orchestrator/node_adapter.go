package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/fieldlab/odm-watcher/internal/node"
)

// nodeAdapter lifts *node.Client onto the orchestrator's RemoteNode
// interface (the concrete client returns *node.Task, not RemoteTask).
type nodeAdapter struct {
	client *node.Client
}

// WrapNode adapts a node client for use by the Orchestrator.
func WrapNode(c *node.Client) RemoteNode {
	return nodeAdapter{client: c}
}

func (a nodeAdapter) CreateTask(ctx context.Context, files []string, name string, options json.RawMessage) (RemoteTask, error) {
	t, err := a.client.CreateTask(ctx, files, name, options)
	if err != nil {
		return nil, err
	}

	return t, nil
}

func (a nodeAdapter) Task(id string) RemoteTask {
	return a.client.Task(id)
}
