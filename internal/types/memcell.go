package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type MemCellType string

const (
	MemCellConversation MemCellType = "conversation"
	MemCellLinkDoc      MemCellType = "linkdoc"
)

// MemCell is the durable record of one detected conversational episode.
// EventID, Timestamp and OriginalData are immutable once persisted; Subject
// and Episode are back-filled by the extraction worker.
type MemCell struct {
	EventID      uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey;column:event_id" json:"event_id"`
	GroupID      string         `gorm:"not null;index;column:group_id" json:"group_id"`
	GroupName    string         `gorm:"column:group_name" json:"group_name,omitempty"`
	Participants datatypes.JSON `gorm:"column:participants" json:"participants,omitempty"`
	Timestamp    time.Time      `gorm:"not null;index;column:timestamp" json:"timestamp"`
	Type         MemCellType    `gorm:"column:type;not null;default:'conversation'" json:"type"`
	OriginalData datatypes.JSON `gorm:"column:original_data" json:"original_data,omitempty"`
	Summary      string         `gorm:"column:summary" json:"summary,omitempty"`
	Episode      string         `gorm:"column:episode" json:"episode,omitempty"`
	Subject      string         `gorm:"column:subject" json:"subject,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (MemCell) TableName() string { return "memcell" }
