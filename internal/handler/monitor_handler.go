package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/supercurriculum-admin/internal/models"
	"github.com/noah-isme/supercurriculum-admin/pkg/response"
)

type monitorService interface {
	Snapshot(ctx context.Context) (*models.ResourceSnapshot, error)
}

// MonitorHandler exposes host and upstream health to superadmins.
type MonitorHandler struct {
	service monitorService
}

// NewMonitorHandler constructs the handler.
func NewMonitorHandler(svc monitorService) *MonitorHandler {
	return &MonitorHandler{service: svc}
}

// Snapshot godoc
// @Summary Resource snapshot
// @Description Host CPU, memory and disk usage with upstream reachability and query cache stats.
// @Tags Monitor
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /api/monitor [get]
func (h *MonitorHandler) Snapshot(c *gin.Context) {
	snapshot, err := h.service.Snapshot(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot)
}
