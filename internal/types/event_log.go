package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// EventLog is the chronological list of atomic facts extracted from one
// episode for one user. FactEmbeddings is index-parallel to AtomicFacts;
// save paths must reject rows where the lengths differ.
type EventLog struct {
	EventID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey;column:event_id" json:"event_id"`
	ParentEpisodeID uuid.UUID      `gorm:"type:uuid;index;column:parent_episode_id" json:"parent_episode_id"`
	UserID          string         `gorm:"not null;index;column:user_id" json:"user_id"`
	GroupID         string         `gorm:"not null;index;column:group_id" json:"group_id"`
	Time            time.Time      `gorm:"not null;index;column:time" json:"time"`
	AtomicFacts     datatypes.JSON `gorm:"column:atomic_facts" json:"atomic_facts"`
	FactEmbeddings  datatypes.JSON `gorm:"column:fact_embeddings" json:"-"`
	SearchText      string         `gorm:"column:search_text" json:"-"`
	CreatedAt       time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (EventLog) TableName() string { return "event_log" }
