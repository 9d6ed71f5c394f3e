package boundary

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/memstream-backend/internal/types"
)

// orderedSequence merges history and new into one created_at-ordered slice.
// The sort is stable so same-instant messages keep arrival order.
func orderedSequence(history, fresh []types.RawMessage) []types.RawMessage {
	seq := make([]types.RawMessage, 0, len(history)+len(fresh))
	seq = append(seq, history...)
	seq = append(seq, fresh...)
	sort.SliceStable(seq, func(i, j int) bool {
		return seq[i].CreatedAt.Before(seq[j].CreatedAt)
	})
	return seq
}

// firstNewIndex locates the earliest of the new messages inside the ordered
// sequence, matching by message id.
func firstNewIndex(seq, fresh []types.RawMessage) int {
	ids := make(map[string]struct{}, len(fresh))
	for _, m := range fresh {
		ids[m.MessageID] = struct{}{}
	}
	for i, m := range seq {
		if _, ok := ids[m.MessageID]; ok {
			return i
		}
	}
	return len(seq) - 1
}

// renderTranscript produces the compact "index | sender | time | content"
// rendering the decision prompt consumes.
func renderTranscript(seq []types.RawMessage) string {
	var b strings.Builder
	for i, m := range seq {
		sender := m.SenderName
		if sender == "" {
			sender = m.SenderID
		}
		fmt.Fprintf(&b, "%d | %s | %s | %s\n", i, sender, m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), m.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func distinctSenders(seq []types.RawMessage) []string {
	seen := make(map[string]struct{}, len(seq))
	var out []string
	for _, m := range seq {
		if m.SenderID == "" {
			continue
		}
		if _, ok := seen[m.SenderID]; ok {
			continue
		}
		seen[m.SenderID] = struct{}{}
		out = append(out, m.SenderID)
	}
	return out
}
