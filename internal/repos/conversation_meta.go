package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/types"
)

type ConversationMetaRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, meta *types.ConversationMeta) (*types.ConversationMeta, error)
	GetByGroupID(ctx context.Context, tx *gorm.DB, groupID string) (*types.ConversationMeta, error)
}

type conversationMetaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationMetaRepo(db *gorm.DB, baseLog *logger.Logger) ConversationMetaRepo {
	return &conversationMetaRepo{db: db, log: baseLog.With("repo", "ConversationMetaRepo")}
}

func (r *conversationMetaRepo) Upsert(ctx context.Context, tx *gorm.DB, meta *types.ConversationMeta) (*types.ConversationMeta, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if meta == nil || meta.GroupID == "" {
		return nil, nil
	}

	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "group_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "description", "scene", "scene_desc", "user_details",
				"tags", "default_timezone", "version", "updated_at",
			}),
		}).
		Create(meta).Error
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func (r *conversationMetaRepo) GetByGroupID(ctx context.Context, tx *gorm.DB, groupID string) (*types.ConversationMeta, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if groupID == "" {
		return nil, nil
	}

	var meta types.ConversationMeta
	err := transaction.WithContext(ctx).
		Where("group_id = ?", groupID).
		First(&meta).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}
