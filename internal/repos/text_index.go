package repos

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/memstream-backend/internal/platform/logger"
)

// TextIndexRepo is the BM25 arm of retrieval: Postgres full-text search over
// the search_text column each memory save writes. Ranking uses ts_rank_cd
// over the same expression the GIN index covers.
type TextIndexRepo interface {
	Search(ctx context.Context, tx *gorm.DB, source TextSource, query string, f MemoryFilter, size int) ([]TextHit, error)
}

type TextHit struct {
	EventID uuid.UUID `gorm:"column:event_id"`
	Score   float64   `gorm:"column:score"`
}

type TextSource string

const (
	TextSourceEpisode   TextSource = "episode"
	TextSourceSemantic  TextSource = "semantic"
	TextSourceEventLog  TextSource = "event_log"
	TextSourceForesight TextSource = "foresight"
)

type textSourceSpec struct {
	table      string
	timeColumn string
	validity   bool
}

var textSources = map[TextSource]textSourceSpec{
	TextSourceEpisode:   {table: "episodic_memory", timeColumn: "timestamp"},
	TextSourceSemantic:  {table: "semantic_memory", timeColumn: "timestamp"},
	TextSourceEventLog:  {table: "event_log", timeColumn: "time"},
	TextSourceForesight: {table: "foresight", timeColumn: "timestamp", validity: true},
}

type textIndexRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTextIndexRepo(db *gorm.DB, baseLog *logger.Logger) TextIndexRepo {
	return &textIndexRepo{db: db, log: baseLog.With("repo", "TextIndexRepo")}
}

func (r *textIndexRepo) Search(ctx context.Context, tx *gorm.DB, source TextSource, query string, f MemoryFilter, size int) ([]TextHit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	spec, ok := textSources[source]
	if !ok {
		return nil, fmt.Errorf("unknown text source %q", source)
	}
	if query == "" {
		return []TextHit{}, nil
	}
	if size <= 0 {
		size = 20
	}

	q := transaction.WithContext(ctx).
		Table(spec.table).
		Select("event_id, ts_rank_cd(to_tsvector('english', coalesce(search_text, '')), plainto_tsquery('english', ?)) AS score", query).
		Where("to_tsvector('english', coalesce(search_text, '')) @@ plainto_tsquery('english', ?)", query)

	q = f.apply(q, spec.timeColumn)
	if spec.validity {
		q = f.applyValidity(q)
	}

	var hits []TextHit
	if err := q.Order("score DESC, event_id ASC").Limit(size).Find(&hits).Error; err != nil {
		return nil, err
	}
	return hits, nil
}
