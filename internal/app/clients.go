package app

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/memstream-backend/internal/platform/envutil"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/platform/openai"
	"github.com/yungbote/memstream-backend/internal/platform/pinecone"
)

type Clients struct {
	Redis *goredis.Client

	// LLM is the extraction/retrieval oracle; BoundaryLLM may run a cheaper
	// model (BOUNDARY_LLM_MODEL) behind the same client.
	LLM         openai.Client
	BoundaryLLM openai.Client

	Vectors pinecone.VectorStore
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	llm, err := openai.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}
	boundaryLLM := openai.WithModel(llm, envutil.Str("BOUNDARY_LLM_MODEL", ""))

	vectors, err := newVectorStore(log, cfg)
	if err != nil {
		return Clients{}, fmt.Errorf("init vector store: %w", err)
	}

	return Clients{
		Redis:       rdb,
		LLM:         llm,
		BoundaryLLM: boundaryLLM,
		Vectors:     instrumentVectorStore(vectors),
	}, nil
}
