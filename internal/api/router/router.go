package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/fieldlab/odm-watcher/internal/api/handlers/jobs"
)

func Setup(h *jobs.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	r.GET("/healthz", h.Health)

	api := r.Group("/api")

	api.GET("/jobs", h.Active) // identifiers of in-flight jobs
	api.GET("/node", h.Node)   // live processing-node info

	return r
}
