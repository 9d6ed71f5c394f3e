package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/memstream-backend/internal/platform/logger"
)

type Repos struct {
	ConversationMeta   ConversationMetaRepo
	ConversationStatus ConversationStatusRepo
	MemCell            MemCellRepo
	Episodic           EpisodicRepo
	Semantic           SemanticRepo
	EventLog           EventLogRepo
	Foresight          ForesightRepo
	Profile            ProfileRepo
	ClusterState       ClusterStateRepo
	TextIndex          TextIndexRepo
}

func Wire(db *gorm.DB, baseLog *logger.Logger) Repos {
	return Repos{
		ConversationMeta:   NewConversationMetaRepo(db, baseLog),
		ConversationStatus: NewConversationStatusRepo(db, baseLog),
		MemCell:            NewMemCellRepo(db, baseLog),
		Episodic:           NewEpisodicRepo(db, baseLog),
		Semantic:           NewSemanticRepo(db, baseLog),
		EventLog:           NewEventLogRepo(db, baseLog),
		Foresight:          NewForesightRepo(db, baseLog),
		Profile:            NewProfileRepo(db, baseLog),
		ClusterState:       NewClusterStateRepo(db, baseLog),
		TextIndex:          NewTextIndexRepo(db, baseLog),
	}
}
