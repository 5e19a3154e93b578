package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/supercurriculum-admin/internal/models"
	"github.com/noah-isme/supercurriculum-admin/internal/service"
)

type upstreamPinger interface {
	Ping(ctx context.Context) (models.UpstreamStatus, error)
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics  *service.MetricsService
	upstream upstreamPinger
}

// NewMetricsHandler constructs a metrics handler. upstream may be nil.
func NewMetricsHandler(metrics *service.MetricsService, upstream upstreamPinger) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, upstream: upstream}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether the backend API answers.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.upstream == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	status, err := h.upstream.Ping(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "upstream": status})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "upstream": status})
}
