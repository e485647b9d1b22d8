package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health and status endpoints
type HealthHandler struct{}

// NewHealthHandler creates a new health handler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Health returns basic health status
// GET /api/health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "chess-orchestrator",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(startTime).Seconds(),
	})
}

// Stats returns system statistics
// GET /api/stats
func (h *HealthHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":        "chess-orchestrator",
		"version":        "1.0.0",
		"uptime_seconds": time.Since(startTime).Seconds(),
		"timestamp":      time.Now().UTC(),
		"endpoints": gin.H{
			"best_moves":    "/api/engines/best-moves",
			"analyze_game":  "/api/engines/analyze-game",
			"engine_config": "/api/engines/config",
			"events":        "/api/events",
			"health":        "/api/health",
		},
	})
}

// Global variable to track startup time
var startTime = time.Now()
