package stores

import (
	"strings"

	"github.com/yungbote/memstream-backend/internal/types"
)

// search_text feeds the FTS index; each type concatenates the fields its
// BM25 arm should match on.

func episodicSearchText(item *types.EpisodicMemory) string {
	return joinNonEmpty(item.Subject, item.Episode, item.Summary)
}

func semanticSearchText(item *types.SemanticMemory) string {
	return joinNonEmpty(item.Content, item.Evidence)
}

func eventLogSearchText(item *types.EventLog) string {
	return joinNonEmpty(types.UnmarshalStrings(item.AtomicFacts)...)
}

func foresightSearchText(item *types.Foresight) string {
	return joinNonEmpty(item.Content, item.Evidence)
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
