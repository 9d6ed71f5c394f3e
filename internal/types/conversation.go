package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Scene string

const (
	SceneAssistant Scene = "assistant"
	SceneCompanion Scene = "companion"
	SceneGroupChat Scene = "group_chat"
	SceneOther     Scene = "other"
)

// IsAssistant reports whether the scene runs a single bot speaker, which
// changes how per-user memories are produced downstream.
func (s Scene) IsAssistant() bool {
	return s == SceneAssistant || s == SceneCompanion
}

type UserDetail struct {
	FullName string            `json:"full_name,omitempty"`
	Role     string            `json:"role,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

type ConversationMeta struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	GroupID         string         `gorm:"uniqueIndex;not null;column:group_id" json:"group_id"`
	Name            string         `gorm:"column:name" json:"name,omitempty"`
	Description     string         `gorm:"column:description" json:"description,omitempty"`
	Scene           Scene          `gorm:"column:scene;not null;default:'other'" json:"scene"`
	SceneDesc       datatypes.JSON `gorm:"column:scene_desc" json:"scene_desc,omitempty"`
	UserDetails     datatypes.JSON `gorm:"column:user_details" json:"user_details,omitempty"`
	Tags            datatypes.JSON `gorm:"column:tags" json:"tags,omitempty"`
	DefaultTimezone string         `gorm:"column:default_timezone" json:"default_timezone,omitempty"`
	Version         string         `gorm:"column:version" json:"version,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ConversationMeta) TableName() string { return "conversation_meta" }

// ConversationStatus tracks per-group ingestion progress. Mutated only by the
// ingestion pipeline; last_message_at advances monotonically.
type ConversationStatus struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	GroupID          string     `gorm:"uniqueIndex;not null;column:group_id" json:"group_id"`
	LastMessageAt    *time.Time `gorm:"column:last_message_at" json:"last_message_at,omitempty"`
	LastMemCellAt    *time.Time `gorm:"column:last_memcell_at" json:"last_memcell_at,omitempty"`
	AwaitingBoundary bool       `gorm:"column:awaiting_boundary;not null;default:false" json:"awaiting_boundary"`
	CreatedAt        time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (ConversationStatus) TableName() string { return "conversation_status" }
