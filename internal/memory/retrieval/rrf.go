package retrieval

import (
	"sort"

	"github.com/google/uuid"
)

// hit is a ranked candidate from one retrieval arm, in rank order.
type hit struct {
	EventID uuid.UUID
	Score   float64
}

// fuseRRF combines ranked lists with reciprocal-rank fusion:
// score(d) = sum over lists of 1 / (k + rank(d)), rank starting at 1.
// A document in both lists always outranks one of equal ranks in a single
// list, so agreement between arms is rewarded.
func fuseRRF(k int, lists ...[]hit) []hit {
	if k <= 0 {
		k = 60
	}
	fused := map[uuid.UUID]float64{}
	order := map[uuid.UUID]int{}
	next := 0
	for _, list := range lists {
		for rank, h := range list {
			if _, seen := fused[h.EventID]; !seen {
				order[h.EventID] = next
				next++
			}
			fused[h.EventID] += 1.0 / float64(k+rank+1)
		}
	}

	out := make([]hit, 0, len(fused))
	for id, score := range fused {
		out = append(out, hit{EventID: id, Score: score})
	}
	// Deterministic: fused score desc, then first-seen order.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return order[out[i].EventID] < order[out[j].EventID]
	})
	return out
}

// sortMemories applies the canonical result ordering: score desc,
// timestamp desc, event_id asc.
func sortMemories(items []Memory) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.After(items[j].Timestamp)
		}
		return items[i].EventID.String() < items[j].EventID.String()
	})
}

// dedupeMemories keeps the first (highest-ranked) occurrence per event_id.
func dedupeMemories(items []Memory) []Memory {
	seen := map[uuid.UUID]struct{}{}
	out := items[:0]
	for _, m := range items {
		if _, ok := seen[m.EventID]; ok {
			continue
		}
		seen[m.EventID] = struct{}{}
		out = append(out, m)
	}
	return out
}
