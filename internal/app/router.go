package app

import (
	apphttp "github.com/yungbote/memstream-backend/internal/http"
	"github.com/yungbote/memstream-backend/internal/observability"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
)

func wireServer(log *logger.Logger, handlers Handlers, metrics *observability.Metrics) *apphttp.Server {
	log.Info("Wiring router...")
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:                     log,
		Metrics:                 metrics,
		MemoryHandler:           handlers.Memory,
		ConversationMetaHandler: handlers.ConversationMeta,
		HealthHandler:           handlers.Health,
		MetricsHandler:          handlers.Metrics,
	})
}
