package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/memstream-backend/internal/http/handlers"
	httpMW "github.com/yungbote/memstream-backend/internal/http/middleware"
	"github.com/yungbote/memstream-backend/internal/observability"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	MemoryHandler           *httpH.MemoryHandler
	ConversationMetaHandler *httpH.ConversationMetaHandler
	HealthHandler           *httpH.HealthHandler
	MetricsHandler          *httpH.MetricsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("memstream-backend"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Healthz)
	}
	if cfg.MetricsHandler != nil {
		r.GET("/metricsz", cfg.MetricsHandler.Metricsz)
	}

	if cfg.MemoryHandler != nil {
		r.POST("/memorize", cfg.MemoryHandler.Memorize)
		r.POST("/retrieve_lightweight", cfg.MemoryHandler.RetrieveLightweight)
		r.POST("/retrieve_agentic", cfg.MemoryHandler.RetrieveAgentic)
	}
	if cfg.ConversationMetaHandler != nil {
		r.POST("/conversation-meta", cfg.ConversationMetaHandler.Upsert)
	}

	api := r.Group("/api")
	{
		if cfg.MemoryHandler != nil {
			api.GET("/request-status/:id", cfg.MemoryHandler.RequestStatus)
		}
		if cfg.ConversationMetaHandler != nil {
			api.GET("/conversation-meta/:group_id", cfg.ConversationMetaHandler.Get)
		}
	}

	return r
}
