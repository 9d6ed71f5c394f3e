package repos

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/types"
)

type EventLogRepo interface {
	Create(ctx context.Context, tx *gorm.DB, items []*types.EventLog) ([]*types.EventLog, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.EventLog, error)
}

type eventLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventLogRepo(db *gorm.DB, baseLog *logger.Logger) EventLogRepo {
	return &eventLogRepo{db: db, log: baseLog.With("repo", "EventLogRepo")}
}

func (r *eventLogRepo) Create(ctx context.Context, tx *gorm.DB, items []*types.EventLog) ([]*types.EventLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(items) == 0 {
		return []*types.EventLog{}, nil
	}

	// Facts and their embeddings travel as parallel arrays; a mismatch here
	// means an upstream extraction bug, and persisting it would corrupt
	// vector search. Fail the whole batch.
	for _, item := range items {
		facts := types.UnmarshalStrings(item.AtomicFacts)
		embs := types.UnmarshalFloatMatrix(item.FactEmbeddings)
		if len(facts) != len(embs) {
			return nil, fmt.Errorf("event log facts/embeddings length mismatch: facts=%d embeddings=%d", len(facts), len(embs))
		}
	}

	if err := transaction.WithContext(ctx).Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *eventLogRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.EventLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.EventLog
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("event_id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
