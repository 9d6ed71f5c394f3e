package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/memstream-backend/internal/http/response"
	"github.com/yungbote/memstream-backend/internal/memory/extract"
	"github.com/yungbote/memstream-backend/internal/memory/ingest"
	"github.com/yungbote/memstream-backend/internal/memory/retrieval"
	"github.com/yungbote/memstream-backend/internal/platform/apierr"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/types"
)

// TaskStatusReader exposes the extraction worker's request-status map.
type TaskStatusReader interface {
	StatusOf(requestID uuid.UUID) (extract.TaskStatus, bool)
}

type MemoryHandler struct {
	pipeline ingest.Pipeline
	engine   retrieval.Engine
	status   TaskStatusReader
	log      *logger.Logger
}

func NewMemoryHandler(pipeline ingest.Pipeline, engine retrieval.Engine, status TaskStatusReader, baseLog *logger.Logger) *MemoryHandler {
	return &MemoryHandler{
		pipeline: pipeline,
		engine:   engine,
		status:   status,
		log:      baseLog.With("handler", "MemoryHandler"),
	}
}

// Memorize accepts one raw message, runs it through the ingestion pipeline
// and acknowledges either a submitted extraction or an accumulation.
func (h *MemoryHandler) Memorize(c *gin.Context) {
	var msg types.RawMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		response.Error(c, http.StatusBadRequest, apierr.CodeInvalidParameter, err)
		return
	}
	if msg.GroupID == "" || msg.Content == "" {
		response.Error(c, http.StatusBadRequest, apierr.CodeInvalidParameter,
			fmt.Errorf("group_id and content are required"))
		return
	}
	if msg.CreatedAt.IsZero() {
		response.Error(c, http.StatusBadRequest, apierr.CodeInvalidParameter,
			fmt.Errorf("created_at is required"))
		return
	}

	result, err := h.pipeline.Memorize(c.Request.Context(), []types.RawMessage{msg})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, "memorize accepted", result)
}

func (h *MemoryHandler) RetrieveLightweight(c *gin.Context) {
	var req retrieval.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, apierr.CodeInvalidParameter, err)
		return
	}

	result, err := h.engine.RetrieveLightweight(c.Request.Context(), req)
	if err != nil {
		response.Error(c, http.StatusBadRequest, apierr.CodeInvalidParameter, err)
		return
	}
	response.OK(c, "", result)
}

func (h *MemoryHandler) RetrieveAgentic(c *gin.Context) {
	var req retrieval.AgenticRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, apierr.CodeInvalidParameter, err)
		return
	}

	result, err := h.engine.RetrieveAgentic(c.Request.Context(), req)
	if err != nil {
		response.Error(c, http.StatusBadRequest, apierr.CodeInvalidParameter, err)
		return
	}
	response.OK(c, "", result)
}

// RequestStatus looks up the extraction status for a memorize request id.
// Extraction runs asynchronously, so this is the only window into failures.
func (h *MemoryHandler) RequestStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, apierr.CodeInvalidParameter,
			fmt.Errorf("invalid request id: %w", err))
		return
	}

	status, ok := h.status.StatusOf(id)
	if !ok {
		response.Error(c, http.StatusNotFound, apierr.CodeBeanNotFound,
			fmt.Errorf("request %s not found", id))
		return
	}
	response.OK(c, "", gin.H{"request_id": id, "status": status})
}
