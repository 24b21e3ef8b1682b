package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
)

// Server identity reported by the discovery endpoints.
const (
	ServerName           = "CyPlanAI LangGraph Server"
	AssistantName        = "CyPlanAI"
	AssistantDescription = "Cybersecurity Planning Assistant"
)

// AssistantResponse is the reply of GET /assistants/:id.
type AssistantResponse struct {
	AssistantID string `json:"assistant_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SystemHandler serves liveness, readiness and discovery endpoints.
type SystemHandler struct {
	version string
	ready   func(context.Context) error
}

// NewSystemHandler creates a SystemHandler. ready may be nil, in which case
// the service is always ready.
func NewSystemHandler(version string, ready func(context.Context) error) *SystemHandler {
	if version == "" {
		version = "1.0.0"
	}
	return &SystemHandler{version: version, ready: ready}
}

// Root handles GET /.
func (h *SystemHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": ServerName, "status": "running"})
}

// Health handles GET /health.
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Ready handles GET /ready.
func (h *SystemHandler) Ready(c *gin.Context) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			logger.Warnw("readiness check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Info handles GET /info.
func (h *SystemHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "running", "server": ServerName, "version": h.version})
}

// Assistant handles GET /assistants/:id. Every id names the one planning
// assistant.
func (h *SystemHandler) Assistant(c *gin.Context) {
	c.JSON(http.StatusOK, AssistantResponse{
		AssistantID: c.Param("id"),
		Name:        AssistantName,
		Description: AssistantDescription,
	})
}
