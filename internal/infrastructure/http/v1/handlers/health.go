package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ReadinessChecker reports whether the database accepts connections.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	db ReadinessChecker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db ReadinessChecker) *HealthHandler {
	return &HealthHandler{db: db}
}

// Live handles liveness probe.
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles readiness probe.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "error",
				"checks": map[string]string{
					"database": "unhealthy: " + err.Error(),
				},
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"checks": map[string]string{
			"database": "healthy",
		},
	})
}
