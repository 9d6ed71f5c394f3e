package repos

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/types"
)

type ConversationStatusRepo interface {
	GetByGroupID(ctx context.Context, tx *gorm.DB, groupID string) (*types.ConversationStatus, error)
	// TouchMessage advances last_message_at (monotonically) and sets the
	// awaiting_boundary flag.
	TouchMessage(ctx context.Context, tx *gorm.DB, groupID string, lastMessageAt time.Time, awaitingBoundary bool) error
	// TouchMemCell records the latest emitted MemCell timestamp and clears
	// awaiting_boundary.
	TouchMemCell(ctx context.Context, tx *gorm.DB, groupID string, lastMemCellAt time.Time) error
}

type conversationStatusRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationStatusRepo(db *gorm.DB, baseLog *logger.Logger) ConversationStatusRepo {
	return &conversationStatusRepo{db: db, log: baseLog.With("repo", "ConversationStatusRepo")}
}

func (r *conversationStatusRepo) GetByGroupID(ctx context.Context, tx *gorm.DB, groupID string) (*types.ConversationStatus, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if groupID == "" {
		return nil, nil
	}

	var status types.ConversationStatus
	err := transaction.WithContext(ctx).
		Where("group_id = ?", groupID).
		First(&status).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *conversationStatusRepo) TouchMessage(ctx context.Context, tx *gorm.DB, groupID string, lastMessageAt time.Time, awaitingBoundary bool) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if groupID == "" {
		return nil
	}

	row := &types.ConversationStatus{
		GroupID:          groupID,
		LastMessageAt:    &lastMessageAt,
		AwaitingBoundary: awaitingBoundary,
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "group_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"last_message_at":   gorm.Expr("GREATEST(conversation_status.last_message_at, ?)", lastMessageAt),
				"awaiting_boundary": awaitingBoundary,
				"updated_at":        time.Now().UTC(),
			}),
		}).
		Create(row).Error
}

func (r *conversationStatusRepo) TouchMemCell(ctx context.Context, tx *gorm.DB, groupID string, lastMemCellAt time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if groupID == "" {
		return nil
	}

	row := &types.ConversationStatus{
		GroupID:       groupID,
		LastMemCellAt: &lastMemCellAt,
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "group_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"last_memcell_at":   lastMemCellAt,
				"awaiting_boundary": false,
				"updated_at":        time.Now().UTC(),
			}),
		}).
		Create(row).Error
}
