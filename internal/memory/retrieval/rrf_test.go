package retrieval

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/memstream-backend/internal/platform/pinecone"
)

func id(t *testing.T, s string) uuid.UUID {
	t.Helper()
	u, err := uuid.Parse(s)
	if err != nil {
		t.Fatalf("uuid %q: %v", s, err)
	}
	return u
}

func TestFuseRRFAgreementWins(t *testing.T) {
	t.Parallel()

	both := id(t, "00000000-0000-0000-0000-000000000001")
	bm25Only := id(t, "00000000-0000-0000-0000-000000000002")
	embOnly := id(t, "00000000-0000-0000-0000-000000000003")

	fused := fuseRRF(60,
		[]hit{{EventID: both, Score: 3.0}, {EventID: bm25Only, Score: 2.0}},
		[]hit{{EventID: both, Score: 0.9}, {EventID: embOnly, Score: 0.8}},
	)
	if len(fused) != 3 {
		t.Fatalf("fused %d results, want 3", len(fused))
	}
	if fused[0].EventID != both {
		t.Fatalf("top result %s, want the doc ranked first by both arms", fused[0].EventID)
	}
	want := 2.0 / 61.0
	if diff := fused[0].Score - want; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("fused score = %v, want %v", fused[0].Score, want)
	}
}

func TestFuseRRFSingleList(t *testing.T) {
	t.Parallel()

	a := id(t, "00000000-0000-0000-0000-00000000000a")
	b := id(t, "00000000-0000-0000-0000-00000000000b")

	fused := fuseRRF(60, []hit{{EventID: a}, {EventID: b}})
	if fused[0].EventID != a || fused[1].EventID != b {
		t.Fatal("single-list fusion must preserve rank order")
	}
}

func TestSortMemoriesTiebreak(t *testing.T) {
	t.Parallel()

	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	items := []Memory{
		{EventID: id(t, "00000000-0000-0000-0000-000000000002"), Score: 0.5, Timestamp: late},
		{EventID: id(t, "00000000-0000-0000-0000-000000000003"), Score: 0.5, Timestamp: early},
		{EventID: id(t, "00000000-0000-0000-0000-000000000001"), Score: 0.5, Timestamp: early},
		{EventID: id(t, "00000000-0000-0000-0000-000000000004"), Score: 0.9, Timestamp: early},
	}
	sortMemories(items)

	// Score desc first, then timestamp desc, then event_id asc.
	wantOrder := []string{
		"00000000-0000-0000-0000-000000000004",
		"00000000-0000-0000-0000-000000000002",
		"00000000-0000-0000-0000-000000000001",
		"00000000-0000-0000-0000-000000000003",
	}
	for i, want := range wantOrder {
		if items[i].EventID.String() != want {
			t.Fatalf("position %d = %s, want %s", i, items[i].EventID, want)
		}
	}
}

func TestDedupeMemoriesKeepsFirst(t *testing.T) {
	t.Parallel()

	dup := id(t, "00000000-0000-0000-0000-000000000001")
	items := dedupeMemories([]Memory{
		{EventID: dup, Score: 0.9},
		{EventID: id(t, "00000000-0000-0000-0000-000000000002"), Score: 0.5},
		{EventID: dup, Score: 0.1},
	})
	if len(items) != 2 {
		t.Fatalf("deduped to %d items, want 2", len(items))
	}
	if items[0].Score != 0.9 {
		t.Fatal("dedupe must keep the first occurrence")
	}
}

func TestCollapseFactMatches(t *testing.T) {
	t.Parallel()

	collapsed := collapseFactMatches([]pinecone.VectorMatch{
		{ID: "00000000-0000-0000-0000-000000000001#0", Score: 0.4},
		{ID: "00000000-0000-0000-0000-000000000002#1", Score: 0.3},
		{ID: "00000000-0000-0000-0000-000000000001#2", Score: 0.9},
	})
	if len(collapsed) != 2 {
		t.Fatalf("collapsed to %d rows, want 2", len(collapsed))
	}
	if collapsed[0].ID != "00000000-0000-0000-0000-000000000001" || collapsed[0].Score != 0.9 {
		t.Fatalf("row 0 = %+v, want best fact score for first row", collapsed[0])
	}
	if collapsed[1].ID != "00000000-0000-0000-0000-000000000002" {
		t.Fatalf("row 1 = %+v", collapsed[1])
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"episode ok", Request{Query: "q", Mode: ModeRRF, DataSource: SourceEpisode}, false},
		{"unknown source", Request{Query: "q", Mode: ModeRRF, DataSource: "graph"}, true},
		{"unknown mode", Request{Query: "q", Mode: "hybrid", DataSource: SourceEpisode}, true},
		{"empty query", Request{Mode: ModeBM25, DataSource: SourceSemantic}, true},
		{"profile needs scope", Request{Mode: ModeRRF, DataSource: SourceProfile}, true},
		{"profile without query ok", Request{Mode: ModeRRF, DataSource: SourceProfile, UserID: "u", GroupID: "g"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := validate(withDefaults(tc.req))
			if (err != nil) != tc.wantErr {
				t.Fatalf("validate(%+v) error = %v, wantErr %v", tc.req, err, tc.wantErr)
			}
		})
	}
}
