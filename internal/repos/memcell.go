package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/types"
)

type MemCellRepo interface {
	Create(ctx context.Context, tx *gorm.DB, cell *types.MemCell) (*types.MemCell, error)
	GetByID(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (*types.MemCell, error)
	GetByGroupID(ctx context.Context, tx *gorm.DB, groupID string, limit int) ([]*types.MemCell, error)
	UpdateExtraction(ctx context.Context, tx *gorm.DB, eventID uuid.UUID, subject, episode string) error
}

type memCellRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMemCellRepo(db *gorm.DB, baseLog *logger.Logger) MemCellRepo {
	return &memCellRepo{db: db, log: baseLog.With("repo", "MemCellRepo")}
}

func (r *memCellRepo) Create(ctx context.Context, tx *gorm.DB, cell *types.MemCell) (*types.MemCell, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if cell == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(cell).Error; err != nil {
		return nil, err
	}
	return cell, nil
}

func (r *memCellRepo) GetByID(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (*types.MemCell, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if eventID == uuid.Nil {
		return nil, nil
	}

	var cell types.MemCell
	err := transaction.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&cell).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cell, nil
}

func (r *memCellRepo) GetByGroupID(ctx context.Context, tx *gorm.DB, groupID string, limit int) ([]*types.MemCell, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.MemCell
	if groupID == "" {
		return results, nil
	}
	if limit <= 0 {
		limit = 100
	}

	if err := transaction.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateExtraction back-fills the fields produced by the extraction worker.
// EventID, Timestamp and OriginalData stay untouched.
func (r *memCellRepo) UpdateExtraction(ctx context.Context, tx *gorm.DB, eventID uuid.UUID, subject, episode string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if eventID == uuid.Nil {
		return nil
	}

	return transaction.WithContext(ctx).
		Model(&types.MemCell{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{"subject": subject, "episode": episode}).Error
}
