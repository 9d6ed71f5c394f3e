package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ClusterStateRow is the periodic snapshot of one group's incremental
// clustering state. Not a hard durability requirement: clusters can be
// rebuilt from episodic embeddings if a snapshot is lost.
type ClusterStateRow struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	GroupID   string         `gorm:"uniqueIndex;not null;column:group_id" json:"group_id"`
	State     datatypes.JSON `gorm:"column:state" json:"state"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ClusterStateRow) TableName() string { return "cluster_state" }
