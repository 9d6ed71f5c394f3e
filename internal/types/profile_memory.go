package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ProfileMemory is the version-chained per-(user, group) structured summary.
// Invariant: for each (user_id, group_id) exactly one row has is_latest=true;
// the profile repo flips the previous latest inside the insert transaction.
type ProfileMemory struct {
	EventID   uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey;column:event_id" json:"event_id"`
	UserID    string         `gorm:"not null;index:idx_profile_user_group,priority:1;column:user_id" json:"user_id"`
	GroupID   string         `gorm:"not null;index:idx_profile_user_group,priority:2;column:group_id" json:"group_id"`
	Version   int            `gorm:"not null;default:1;column:version" json:"version"`
	IsLatest  bool           `gorm:"not null;default:true;index;column:is_latest" json:"is_latest"`
	Scenario  string         `gorm:"column:scenario" json:"scenario,omitempty"`
	Summary   string         `gorm:"column:summary" json:"summary,omitempty"`
	Interests datatypes.JSON `gorm:"column:interests" json:"interests,omitempty"`
	Skills    datatypes.JSON `gorm:"column:skills" json:"skills,omitempty"`
	Traits    datatypes.JSON `gorm:"column:traits" json:"traits,omitempty"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ProfileMemory) TableName() string { return "profile_memory" }
