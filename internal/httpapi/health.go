package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterHealthRoutes wires /health, reporting store/registry
// readiness rather than a bare 200 — enough for an orchestrator's
// liveness probe and a quick eyeball of queue backpressure.
func RegisterHealthRoutes(r *gin.Engine, deps Deps) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":           "ok",
			"persistQueueDepth": deps.Store.QueueDepth(),
			"rooms":            len(deps.Registry.ListRooms()),
		})
	})
}
