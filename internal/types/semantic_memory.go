package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SemanticMemory is one atomic fact or preference extracted from an episode,
// always attributed to a single user. Start/End bound the fact's validity
// when the extractor could infer one.
type SemanticMemory struct {
	EventID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey;column:event_id" json:"event_id"`
	SourceEpisodeID uuid.UUID      `gorm:"type:uuid;index;column:source_episode_id" json:"source_episode_id"`
	UserID          string         `gorm:"not null;index;column:user_id" json:"user_id"`
	GroupID         string         `gorm:"not null;index;column:group_id" json:"group_id"`
	Content         string         `gorm:"not null;column:content" json:"content"`
	Evidence        string         `gorm:"column:evidence" json:"evidence,omitempty"`
	StartTime       *time.Time     `gorm:"column:start_time" json:"start_time,omitempty"`
	EndTime         *time.Time     `gorm:"column:end_time" json:"end_time,omitempty"`
	DurationDays    *int           `gorm:"column:duration_days" json:"duration_days,omitempty"`
	Timestamp       time.Time      `gorm:"not null;index;column:timestamp" json:"timestamp"`
	Embedding       datatypes.JSON `gorm:"column:embedding" json:"-"`
	SearchText      string         `gorm:"column:search_text" json:"-"`
	CreatedAt       time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (SemanticMemory) TableName() string { return "semantic_memory" }
