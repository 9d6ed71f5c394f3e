package app

import (
	"fmt"

	"github.com/yungbote/memstream-backend/internal/platform/envutil"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/platform/pinecone"
	"github.com/yungbote/memstream-backend/internal/platform/qdrant"
)

type VectorProvider string

const (
	VectorProviderPinecone VectorProvider = "pinecone"
	VectorProviderQdrant   VectorProvider = "qdrant"
)

// newVectorStore selects the vector index provider by VECTOR_PROVIDER.
// Both providers serve the same pinecone.VectorStore contract, so everything
// above this switch is provider-agnostic.
func newVectorStore(log *logger.Logger, cfg Config) (pinecone.VectorStore, error) {
	switch VectorProvider(cfg.VectorProvider) {
	case VectorProviderPinecone:
		pc, err := pinecone.New(log, pinecone.Config{
			APIKey: envutil.Str("PINECONE_API_KEY", ""),
		})
		if err != nil {
			return nil, fmt.Errorf("init pinecone client: %w", err)
		}
		return pinecone.NewVectorStore(log, pc)
	case VectorProviderQdrant:
		qcfg, err := qdrant.ResolveConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("resolve qdrant config: %w", err)
		}
		return qdrant.NewVectorStore(log, qcfg)
	default:
		return nil, fmt.Errorf("unknown VECTOR_PROVIDER %q (want pinecone or qdrant)", cfg.VectorProvider)
	}
}
