package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/types"
)

type ProfileRepo interface {
	// CreateVersion inserts a new profile version and flips the previous
	// latest row in the same transaction, preserving the one-latest-per-
	// (user, group) invariant.
	CreateVersion(ctx context.Context, tx *gorm.DB, profile *types.ProfileMemory) (*types.ProfileMemory, error)
	GetLatest(ctx context.Context, tx *gorm.DB, userID, groupID string) (*types.ProfileMemory, error)
	GetHistory(ctx context.Context, tx *gorm.DB, userID, groupID string, limit int) ([]*types.ProfileMemory, error)
}

type profileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileRepo(db *gorm.DB, baseLog *logger.Logger) ProfileRepo {
	return &profileRepo{db: db, log: baseLog.With("repo", "ProfileRepo")}
}

func (r *profileRepo) CreateVersion(ctx context.Context, tx *gorm.DB, profile *types.ProfileMemory) (*types.ProfileMemory, error) {
	if profile == nil || profile.UserID == "" || profile.GroupID == "" {
		return nil, nil
	}

	run := func(transaction *gorm.DB) error {
		var prev types.ProfileMemory
		err := transaction.WithContext(ctx).
			Where("user_id = ? AND group_id = ? AND is_latest = true", profile.UserID, profile.GroupID).
			First(&prev).Error
		switch err {
		case nil:
			profile.Version = prev.Version + 1
			if uErr := transaction.WithContext(ctx).
				Model(&types.ProfileMemory{}).
				Where("event_id = ?", prev.EventID).
				Update("is_latest", false).Error; uErr != nil {
				return uErr
			}
		case gorm.ErrRecordNotFound:
			profile.Version = 1
		default:
			return err
		}
		profile.IsLatest = true
		return transaction.WithContext(ctx).Create(profile).Error
	}

	if tx != nil {
		if err := run(tx); err != nil {
			return nil, err
		}
		return profile, nil
	}
	if err := r.db.Transaction(func(transaction *gorm.DB) error {
		return run(transaction)
	}); err != nil {
		return nil, err
	}
	return profile, nil
}

func (r *profileRepo) GetLatest(ctx context.Context, tx *gorm.DB, userID, groupID string) (*types.ProfileMemory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if userID == "" || groupID == "" {
		return nil, nil
	}

	var profile types.ProfileMemory
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND group_id = ? AND is_latest = true", userID, groupID).
		First(&profile).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepo) GetHistory(ctx context.Context, tx *gorm.DB, userID, groupID string, limit int) ([]*types.ProfileMemory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ProfileMemory
	if userID == "" || groupID == "" {
		return results, nil
	}
	if limit <= 0 {
		limit = 20
	}
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		Order("version DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
