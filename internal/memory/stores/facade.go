package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/memstream-backend/internal/observability"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/platform/pinecone"
	"github.com/yungbote/memstream-backend/internal/repos"
	"github.com/yungbote/memstream-backend/internal/types"
)

// Vector-index namespaces, one per memory type.
const (
	NamespaceEpisode   = "episode"
	NamespaceSemantic  = "semantic"
	NamespaceEventLog  = "event_log"
	NamespaceForesight = "foresight"
)

// Facade is the triple-writing save path for every memory type: document
// row first (ids assigned, search_text set so the FTS index covers it),
// then the vector index. A vector failure never rolls back the document
// write; it is logged and counted so the out-of-band reconciler can catch
// up. Reads on the document store stay correct during that window.
type Facade interface {
	SaveEpisodics(ctx context.Context, items []*types.EpisodicMemory) ([]*types.EpisodicMemory, error)
	SaveSemantics(ctx context.Context, items []*types.SemanticMemory) ([]*types.SemanticMemory, error)
	SaveEventLogs(ctx context.Context, items []*types.EventLog) ([]*types.EventLog, error)
	SaveForesights(ctx context.Context, items []*types.Foresight) ([]*types.Foresight, error)
	SaveProfile(ctx context.Context, profile *types.ProfileMemory) (*types.ProfileMemory, error)
}

type facade struct {
	repos   repos.Repos
	vectors pinecone.VectorStore
	log     *logger.Logger
}

func NewFacade(r repos.Repos, vectors pinecone.VectorStore, baseLog *logger.Logger) (Facade, error) {
	if vectors == nil {
		return nil, fmt.Errorf("vector store required")
	}
	return &facade{
		repos:   r,
		vectors: vectors,
		log:     baseLog.With("service", "MemoryStores"),
	}, nil
}

func (f *facade) SaveEpisodics(ctx context.Context, items []*types.EpisodicMemory) ([]*types.EpisodicMemory, error) {
	if len(items) == 0 {
		return items, nil
	}
	for _, item := range items {
		item.SearchText = episodicSearchText(item)
	}
	saved, err := f.repos.Episodic.Create(ctx, nil, items)
	if err != nil {
		return nil, fmt.Errorf("save episodic memories: %w", err)
	}

	vectors := make([]pinecone.Vector, 0, len(saved))
	for _, item := range saved {
		emb := types.UnmarshalFloats(item.Embedding)
		if !usableEmbedding(emb) {
			continue
		}
		vectors = append(vectors, pinecone.Vector{
			ID:       item.EventID.String(),
			Values:   emb,
			Metadata: vectorMetadata(item.UserID, item.GroupID, item.Timestamp),
		})
	}
	f.upsert(ctx, NamespaceEpisode, vectors)
	return saved, nil
}

func (f *facade) SaveSemantics(ctx context.Context, items []*types.SemanticMemory) ([]*types.SemanticMemory, error) {
	if len(items) == 0 {
		return items, nil
	}
	for _, item := range items {
		item.SearchText = semanticSearchText(item)
	}
	saved, err := f.repos.Semantic.Create(ctx, nil, items)
	if err != nil {
		return nil, fmt.Errorf("save semantic memories: %w", err)
	}

	vectors := make([]pinecone.Vector, 0, len(saved))
	for _, item := range saved {
		emb := types.UnmarshalFloats(item.Embedding)
		if !usableEmbedding(emb) {
			continue
		}
		vectors = append(vectors, pinecone.Vector{
			ID:       item.EventID.String(),
			Values:   emb,
			Metadata: vectorMetadata(item.UserID, item.GroupID, item.Timestamp),
		})
	}
	f.upsert(ctx, NamespaceSemantic, vectors)
	return saved, nil
}

func (f *facade) SaveEventLogs(ctx context.Context, items []*types.EventLog) ([]*types.EventLog, error) {
	if len(items) == 0 {
		return items, nil
	}
	for _, item := range items {
		item.SearchText = eventLogSearchText(item)
	}
	saved, err := f.repos.EventLog.Create(ctx, nil, items)
	if err != nil {
		return nil, fmt.Errorf("save event logs: %w", err)
	}

	// One vector row per atomic fact; fact index rides in the ID so matches
	// join back to the owning event_log row.
	var vectors []pinecone.Vector
	for _, item := range saved {
		embeddings := types.UnmarshalFloatMatrix(item.FactEmbeddings)
		for i, emb := range embeddings {
			if !usableEmbedding(emb) {
				continue
			}
			vectors = append(vectors, pinecone.Vector{
				ID:       FactVectorID(item.EventID, i),
				Values:   emb,
				Metadata: vectorMetadata(item.UserID, item.GroupID, item.Time),
			})
		}
	}
	f.upsert(ctx, NamespaceEventLog, vectors)
	return saved, nil
}

func (f *facade) SaveForesights(ctx context.Context, items []*types.Foresight) ([]*types.Foresight, error) {
	if len(items) == 0 {
		return items, nil
	}
	for _, item := range items {
		item.SearchText = foresightSearchText(item)
	}
	saved, err := f.repos.Foresight.Create(ctx, nil, items)
	if err != nil {
		return nil, fmt.Errorf("save foresights: %w", err)
	}

	vectors := make([]pinecone.Vector, 0, len(saved))
	for _, item := range saved {
		emb := types.UnmarshalFloats(item.Embedding)
		if !usableEmbedding(emb) {
			continue
		}
		vectors = append(vectors, pinecone.Vector{
			ID:       item.EventID.String(),
			Values:   emb,
			Metadata: vectorMetadata(item.UserID, item.GroupID, item.Timestamp),
		})
	}
	f.upsert(ctx, NamespaceForesight, vectors)
	return saved, nil
}

// SaveProfile has no text or vector arm; the repo transaction maintains the
// single-latest-version invariant.
func (f *facade) SaveProfile(ctx context.Context, profile *types.ProfileMemory) (*types.ProfileMemory, error) {
	saved, err := f.repos.Profile.CreateVersion(ctx, nil, profile)
	if err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return saved, nil
}

func (f *facade) upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) {
	if len(vectors) == 0 {
		return
	}
	if err := f.vectors.Upsert(ctx, namespace, vectors); err != nil {
		observability.Current().ObserveIndexWriteLagged()
		f.log.Error("vector index write failed; index lagging behind document store",
			"namespace", namespace,
			"vectors", len(vectors),
			"error", err,
		)
	}
}

// FactVectorID names one fact embedding inside an event log's vector rows.
func FactVectorID(eventID uuid.UUID, factIndex int) string {
	return fmt.Sprintf("%s#%d", eventID, factIndex)
}

func vectorMetadata(userID, groupID string, ts time.Time) map[string]any {
	meta := map[string]any{
		"group_id":  groupID,
		"timestamp": ts.Unix(),
	}
	if userID != "" {
		meta["user_id"] = userID
	}
	return meta
}

// usableEmbedding rejects empty vectors and the zero-vector placeholders an
// embedding outage leaves behind; those rows stay text-searchable only.
func usableEmbedding(emb []float32) bool {
	if len(emb) == 0 {
		return false
	}
	for _, v := range emb {
		if v != 0 {
			return true
		}
	}
	return false
}
