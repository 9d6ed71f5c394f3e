package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Foresight is a prediction or expectation with an optional validity window.
// Retrieval filters on the window when the caller supplies a current time.
type Foresight struct {
	EventID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey;column:event_id" json:"event_id"`
	ParentEpisodeID uuid.UUID      `gorm:"type:uuid;index;column:parent_episode_id" json:"parent_episode_id"`
	UserID          string         `gorm:"index;column:user_id" json:"user_id,omitempty"`
	GroupID         string         `gorm:"not null;index;column:group_id" json:"group_id"`
	Content         string         `gorm:"not null;column:content" json:"content"`
	Evidence        string         `gorm:"column:evidence" json:"evidence,omitempty"`
	StartTime       *time.Time     `gorm:"column:start_time" json:"start_time,omitempty"`
	EndTime         *time.Time     `gorm:"column:end_time" json:"end_time,omitempty"`
	Timestamp       time.Time      `gorm:"not null;index;column:timestamp" json:"timestamp"`
	Embedding       datatypes.JSON `gorm:"column:embedding" json:"-"`
	SearchText      string         `gorm:"column:search_text" json:"-"`
	CreatedAt       time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Foresight) TableName() string { return "foresight" }
