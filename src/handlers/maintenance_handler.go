package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/recall-ai/recall/src/health"
	"github.com/recall-ai/recall/src/models"
)

// MaintenanceHandler fronts the health controller: the health endpoint and
// the single maintenance-trigger surface.
type MaintenanceHandler struct {
	controller *health.Controller
}

func NewMaintenanceHandler(controller *health.Controller) *MaintenanceHandler {
	return &MaintenanceHandler{controller: controller}
}

func (h *MaintenanceHandler) HandleHealth(c *gin.Context) {
	snapshot, err := h.controller.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":    "error",
			"error":     err.Error(),
			"timestamp": time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func (h *MaintenanceHandler) HandleTrigger(c *gin.Context) {
	var req models.MaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.controller.TriggerMaintenance(c.Request.Context(), req.Action)
	if err != nil {
		if errors.Is(err, models.ErrInvalidAction) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":         err.Error(),
				"valid_actions": models.ValidActions,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}
