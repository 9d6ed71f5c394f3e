package repos

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/types"
)

type ClusterStateRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, groupID string, state datatypes.JSON) error
	GetByGroupID(ctx context.Context, tx *gorm.DB, groupID string) (*types.ClusterStateRow, error)
}

type clusterStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClusterStateRepo(db *gorm.DB, baseLog *logger.Logger) ClusterStateRepo {
	return &clusterStateRepo{db: db, log: baseLog.With("repo", "ClusterStateRepo")}
}

func (r *clusterStateRepo) Upsert(ctx context.Context, tx *gorm.DB, groupID string, state datatypes.JSON) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if groupID == "" {
		return nil
	}

	row := &types.ClusterStateRow{GroupID: groupID, State: state}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
		}).
		Create(row).Error
}

func (r *clusterStateRepo) GetByGroupID(ctx context.Context, tx *gorm.DB, groupID string) (*types.ClusterStateRow, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if groupID == "" {
		return nil, nil
	}

	var row types.ClusterStateRow
	err := transaction.WithContext(ctx).
		Where("group_id = ?", groupID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
