package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/memstream-backend/internal/memory/boundary"
	"github.com/yungbote/memstream-backend/internal/memory/buffer"
	"github.com/yungbote/memstream-backend/internal/memory/cluster"
	"github.com/yungbote/memstream-backend/internal/memory/extract"
	"github.com/yungbote/memstream-backend/internal/memory/ingest"
	"github.com/yungbote/memstream-backend/internal/memory/prompts"
	"github.com/yungbote/memstream-backend/internal/memory/retrieval"
	"github.com/yungbote/memstream-backend/internal/memory/stores"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/queue/pgq"
	"github.com/yungbote/memstream-backend/internal/repos"
)

type Services struct {
	Queue    *pgq.Manager
	Buffer   buffer.ConversationBuffer
	Detector boundary.Detector
	Clusters *cluster.Manager
	Stores   stores.Facade
	Worker   *extract.Worker
	Pipeline ingest.Pipeline
	Engine   retrieval.Engine
	Intake   *ingest.Runner
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, clients Clients, r repos.Repos) (Services, error) {
	log.Info("Wiring services...")

	prompts.RegisterAll()

	queue, err := pgq.NewManager(clients.Redis, log)
	if err != nil {
		return Services{}, fmt.Errorf("init queue manager: %w", err)
	}

	cb, err := buffer.NewConversationBuffer(clients.Redis, log)
	if err != nil {
		return Services{}, fmt.Errorf("init conversation buffer: %w", err)
	}

	detector, err := boundary.NewDetector(clients.BoundaryLLM, log)
	if err != nil {
		return Services{}, fmt.Errorf("init boundary detector: %w", err)
	}

	clusters := cluster.NewManager(r.ClusterState, log)

	msf, err := stores.NewFacade(r, clients.Vectors, log)
	if err != nil {
		return Services{}, fmt.Errorf("init memory stores: %w", err)
	}

	worker, err := extract.NewWorker(clients.LLM, msf, r, clusters, log)
	if err != nil {
		return Services{}, fmt.Errorf("init extraction worker: %w", err)
	}

	locks, err := ingest.NewGroupLock(clients.Redis)
	if err != nil {
		return Services{}, fmt.Errorf("init group lock: %w", err)
	}

	pipeline, err := ingest.NewPipeline(cb, detector, worker, r, locks, log)
	if err != nil {
		return Services{}, fmt.Errorf("init ingestion pipeline: %w", err)
	}

	engine, err := retrieval.NewEngine(clients.LLM, clients.Vectors, r, log)
	if err != nil {
		return Services{}, fmt.Errorf("init retrieval engine: %w", err)
	}

	var intake *ingest.Runner
	if cfg.PGQIntakeEnabled {
		intake, err = ingest.NewRunner(queue, pipeline, log)
		if err != nil {
			return Services{}, fmt.Errorf("init intake runner: %w", err)
		}
	}

	return Services{
		Queue:    queue,
		Buffer:   cb,
		Detector: detector,
		Clusters: clusters,
		Stores:   msf,
		Worker:   worker,
		Pipeline: pipeline,
		Engine:   engine,
		Intake:   intake,
	}, nil
}
