package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/memstream-backend/internal/observability"
	"github.com/yungbote/memstream-backend/internal/queue/pgq"
)

type HealthHandler struct{}

func NewHealthHandler() *HealthHandler { return &HealthHandler{} }

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// MetricsHandler serves the process counter snapshot plus the queue's shared
// Redis-side stats as one JSON body.
type MetricsHandler struct {
	metrics *observability.Metrics
	queue   *pgq.Manager
}

func NewMetricsHandler(m *observability.Metrics, queue *pgq.Manager) *MetricsHandler {
	return &MetricsHandler{metrics: m, queue: queue}
}

func (h *MetricsHandler) Metricsz(c *gin.Context) {
	body := gin.H{"process": h.metrics.Snapshot()}
	if h.queue != nil {
		if stats, err := h.queue.Stats(c.Request.Context()); err == nil {
			body["queue"] = stats
		}
		if count, err := h.queue.Count(c.Request.Context()); err == nil {
			body["queue_count"] = count
		}
	}
	c.JSON(http.StatusOK, body)
}
