package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/types"
)

type EpisodicRepo interface {
	Create(ctx context.Context, tx *gorm.DB, items []*types.EpisodicMemory) ([]*types.EpisodicMemory, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.EpisodicMemory, error)
	Find(ctx context.Context, tx *gorm.DB, f MemoryFilter, limit int) ([]*types.EpisodicMemory, error)
}

type episodicRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEpisodicRepo(db *gorm.DB, baseLog *logger.Logger) EpisodicRepo {
	return &episodicRepo{db: db, log: baseLog.With("repo", "EpisodicRepo")}
}

func (r *episodicRepo) Create(ctx context.Context, tx *gorm.DB, items []*types.EpisodicMemory) ([]*types.EpisodicMemory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(items) == 0 {
		return []*types.EpisodicMemory{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *episodicRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.EpisodicMemory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.EpisodicMemory
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

func (r *episodicRepo) Find(ctx context.Context, tx *gorm.DB, f MemoryFilter, limit int) ([]*types.EpisodicMemory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if limit <= 0 {
		limit = 50
	}

	var results []*types.EpisodicMemory
	q := f.apply(transaction.WithContext(ctx).Model(&types.EpisodicMemory{}), "timestamp")
	if err := q.Order("timestamp DESC").Limit(limit).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
