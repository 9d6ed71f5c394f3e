package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/memstream-backend/internal/http/response"
	"github.com/yungbote/memstream-backend/internal/platform/apierr"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/repos"
	"github.com/yungbote/memstream-backend/internal/types"
)

type ConversationMetaHandler struct {
	meta repos.ConversationMetaRepo
	log  *logger.Logger
}

func NewConversationMetaHandler(meta repos.ConversationMetaRepo, baseLog *logger.Logger) *ConversationMetaHandler {
	return &ConversationMetaHandler{
		meta: meta,
		log:  baseLog.With("handler", "ConversationMetaHandler"),
	}
}

// Upsert creates or replaces the per-group conversation context used by
// boundary detection and extraction (scene, timezone, participant roles).
func (h *ConversationMetaHandler) Upsert(c *gin.Context) {
	var meta types.ConversationMeta
	if err := c.ShouldBindJSON(&meta); err != nil {
		response.Error(c, http.StatusBadRequest, apierr.CodeInvalidParameter, err)
		return
	}
	if meta.GroupID == "" {
		response.Error(c, http.StatusBadRequest, apierr.CodeInvalidParameter,
			fmt.Errorf("group_id is required"))
		return
	}
	switch meta.Scene {
	case "", types.SceneAssistant, types.SceneCompanion, types.SceneGroupChat, types.SceneOther:
	default:
		response.Error(c, http.StatusBadRequest, apierr.CodeInvalidParameter,
			fmt.Errorf("invalid scene %q", meta.Scene))
		return
	}

	saved, err := h.meta.Upsert(c.Request.Context(), nil, &meta)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, "conversation meta saved", saved)
}

func (h *ConversationMetaHandler) Get(c *gin.Context) {
	groupID := c.Param("group_id")
	if groupID == "" {
		response.Error(c, http.StatusBadRequest, apierr.CodeInvalidParameter,
			fmt.Errorf("group_id is required"))
		return
	}

	meta, err := h.meta.GetByGroupID(c.Request.Context(), nil, groupID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if meta == nil {
		response.Error(c, http.StatusNotFound, apierr.CodeBeanNotFound,
			fmt.Errorf("no conversation meta for group %s", groupID))
		return
	}
	response.OK(c, "", meta)
}
