package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/types"
)

type SemanticRepo interface {
	Create(ctx context.Context, tx *gorm.DB, items []*types.SemanticMemory) ([]*types.SemanticMemory, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.SemanticMemory, error)
	GetBySourceEpisode(ctx context.Context, tx *gorm.DB, episodeID uuid.UUID) ([]*types.SemanticMemory, error)
}

type semanticRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSemanticRepo(db *gorm.DB, baseLog *logger.Logger) SemanticRepo {
	return &semanticRepo{db: db, log: baseLog.With("repo", "SemanticRepo")}
}

func (r *semanticRepo) Create(ctx context.Context, tx *gorm.DB, items []*types.SemanticMemory) ([]*types.SemanticMemory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(items) == 0 {
		return []*types.SemanticMemory{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *semanticRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.SemanticMemory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.SemanticMemory
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

func (r *semanticRepo) GetBySourceEpisode(ctx context.Context, tx *gorm.DB, episodeID uuid.UUID) ([]*types.SemanticMemory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.SemanticMemory
	if episodeID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("source_episode_id = ?", episodeID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
