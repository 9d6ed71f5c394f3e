package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/types"
)

type ForesightRepo interface {
	Create(ctx context.Context, tx *gorm.DB, items []*types.Foresight) ([]*types.Foresight, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Foresight, error)
	// GetValidByIDs drops rows whose validity window excludes the filter's
	// ValidAt instant.
	GetValidByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, f MemoryFilter) ([]*types.Foresight, error)
}

type foresightRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewForesightRepo(db *gorm.DB, baseLog *logger.Logger) ForesightRepo {
	return &foresightRepo{db: db, log: baseLog.With("repo", "ForesightRepo")}
}

func (r *foresightRepo) Create(ctx context.Context, tx *gorm.DB, items []*types.Foresight) ([]*types.Foresight, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(items) == 0 {
		return []*types.Foresight{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *foresightRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Foresight, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Foresight
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

func (r *foresightRepo) GetValidByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, f MemoryFilter) ([]*types.Foresight, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Foresight
	if len(ids) == 0 {
		return results, nil
	}
	q := transaction.WithContext(ctx).Where("event_id IN ?", ids)
	q = f.applyValidity(q)
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
