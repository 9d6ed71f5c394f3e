package repos

import (
	"time"

	"gorm.io/gorm"
)

// MemoryFilter is the shared scoping filter for memory reads. Empty UserID
// means group scope (no user restriction). ValidAt applies only to foresight:
// rows whose validity window excludes the instant are dropped.
type MemoryFilter struct {
	UserID  string
	GroupID string
	From    *time.Time
	To      *time.Time
	ValidAt *time.Time
}

func (f MemoryFilter) apply(q *gorm.DB, timeColumn string) *gorm.DB {
	if f.GroupID != "" {
		q = q.Where("group_id = ?", f.GroupID)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.From != nil {
		q = q.Where(timeColumn+" >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where(timeColumn+" <= ?", *f.To)
	}
	return q
}

func (f MemoryFilter) applyValidity(q *gorm.DB) *gorm.DB {
	if f.ValidAt == nil {
		return q
	}
	q = q.Where("start_time IS NULL OR start_time <= ?", *f.ValidAt)
	q = q.Where("end_time IS NULL OR end_time >= ?", *f.ValidAt)
	return q
}
