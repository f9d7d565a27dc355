package jobs

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/fieldlab/odm-watcher/internal/api/respond"
	"github.com/fieldlab/odm-watcher/internal/model"
)

// jobSource exposes the identifiers of jobs currently in flight.
type jobSource interface {
	Snapshot() []string
	Len() int
}

// nodeProbe queries the processing node for its description.
type nodeProbe interface {
	Info(ctx context.Context) (model.NodeInfo, error)
}

// Handler provides the read-only HTTP handlers for watcher state.
type Handler struct {
	jobs jobSource
	node nodeProbe
}

// NewHandler creates a Handler over the given job source and node probe.
func NewHandler(jobs jobSource, node nodeProbe) *Handler {
	return &Handler{jobs: jobs, node: node}
}

// Active lists the identifiers of jobs currently being polled.
func (h *Handler) Active(c *ginext.Context) {
	respond.OK(c, map[string]interface{}{
		"count": h.jobs.Len(),
		"jobs":  h.jobs.Snapshot(),
	})
}

// Node returns the processing node's live info.
func (h *Handler) Node(c *ginext.Context) {
	info, err := h.node.Info(c.Request.Context())
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to query node info")
		respond.Fail(c, http.StatusBadGateway, fmt.Errorf("failed to query node: %v", err))
		return
	}

	respond.OK(c, info)
}

// Health reports liveness.
func (h *Handler) Health(c *ginext.Context) {
	respond.OK(c, "ok")
}
