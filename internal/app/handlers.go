package app

import (
	httpH "github.com/yungbote/memstream-backend/internal/http/handlers"
	"github.com/yungbote/memstream-backend/internal/observability"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/repos"
)

type Handlers struct {
	Memory           *httpH.MemoryHandler
	ConversationMeta *httpH.ConversationMetaHandler
	Health           *httpH.HealthHandler
	Metrics          *httpH.MetricsHandler
}

func wireHandlers(log *logger.Logger, services Services, r repos.Repos, metrics *observability.Metrics) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Memory:           httpH.NewMemoryHandler(services.Pipeline, services.Engine, services.Worker, log),
		ConversationMeta: httpH.NewConversationMetaHandler(r.ConversationMeta, log),
		Health:           httpH.NewHealthHandler(),
		Metrics:          httpH.NewMetricsHandler(metrics, services.Queue),
	}
}
