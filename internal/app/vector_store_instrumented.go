package app

import (
	"context"
	"time"

	"github.com/yungbote/memstream-backend/internal/observability"
	"github.com/yungbote/memstream-backend/internal/platform/pinecone"
)

type instrumentedVectorStore struct {
	inner pinecone.VectorStore
}

func instrumentVectorStore(inner pinecone.VectorStore) pinecone.VectorStore {
	if inner == nil {
		return nil
	}
	return &instrumentedVectorStore{inner: inner}
}

func (s *instrumentedVectorStore) Upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) error {
	start := time.Now()
	err := s.inner.Upsert(ctx, namespace, vectors)
	observability.Current().ObserveVectorStoreOperation(time.Since(start), err != nil)
	return err
}

func (s *instrumentedVectorStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]pinecone.VectorMatch, error) {
	start := time.Now()
	out, err := s.inner.QueryMatches(ctx, namespace, q, topK, filter)
	observability.Current().ObserveVectorStoreOperation(time.Since(start), err != nil)
	return out, err
}

func (s *instrumentedVectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	start := time.Now()
	err := s.inner.DeleteIDs(ctx, namespace, ids)
	observability.Current().ObserveVectorStoreOperation(time.Since(start), err != nil)
	return err
}
