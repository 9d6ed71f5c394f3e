package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// EpisodicMemory is the LLM narrative of one MemCell. UserID empty means
// group scope. ParentMemCellIDs are weak references: deleting a MemCell does
// not cascade here.
type EpisodicMemory struct {
	EventID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey;column:event_id" json:"event_id"`
	ParentMemCellIDs datatypes.JSON `gorm:"column:parent_memcell_ids" json:"parent_memcell_ids,omitempty"`
	UserID           string         `gorm:"index;column:user_id" json:"user_id,omitempty"`
	GroupID          string         `gorm:"not null;index;column:group_id" json:"group_id"`
	Timestamp        time.Time      `gorm:"not null;index;column:timestamp" json:"timestamp"`
	Subject          string         `gorm:"column:subject" json:"subject,omitempty"`
	Episode          string         `gorm:"column:episode" json:"episode"`
	Summary          string         `gorm:"column:summary" json:"summary,omitempty"`
	Embedding        datatypes.JSON `gorm:"column:embedding" json:"-"`
	SearchText       string         `gorm:"column:search_text" json:"-"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (EpisodicMemory) TableName() string { return "episodic_memory" }
