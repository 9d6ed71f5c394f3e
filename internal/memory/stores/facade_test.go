package stores

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/memstream-backend/internal/types"
)

func TestSearchTextComposition(t *testing.T) {
	t.Parallel()

	ep := &types.EpisodicMemory{Subject: "lunch plans", Episode: "They planned lunch.", Summary: ""}
	if got := episodicSearchText(ep); got != "lunch plans\nThey planned lunch." {
		t.Fatalf("episodic search text = %q", got)
	}

	sem := &types.SemanticMemory{Content: "Likes espresso", Evidence: "ordered a double shot"}
	if got := semanticSearchText(sem); got != "Likes espresso\nordered a double shot" {
		t.Fatalf("semantic search text = %q", got)
	}

	el := &types.EventLog{AtomicFacts: types.MarshalJSONColumn([]string{"woke up", "made coffee"})}
	if got := eventLogSearchText(el); got != "woke up\nmade coffee" {
		t.Fatalf("event log search text = %q", got)
	}

	fs := &types.Foresight{Content: "Will travel in May", Evidence: ""}
	if got := foresightSearchText(fs); got != "Will travel in May" {
		t.Fatalf("foresight search text = %q", got)
	}
}

func TestUsableEmbedding(t *testing.T) {
	t.Parallel()

	if usableEmbedding(nil) {
		t.Fatal("empty embedding reported usable")
	}
	if usableEmbedding([]float32{0, 0, 0}) {
		t.Fatal("zero-vector placeholder reported usable")
	}
	if !usableEmbedding([]float32{0, 0.1, 0}) {
		t.Fatal("real embedding reported unusable")
	}
}

func TestFactVectorID(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	if got := FactVectorID(id, 2); got != "7c9e6679-7425-40de-944b-e07fc1f90ae7#2" {
		t.Fatalf("FactVectorID = %q", got)
	}
}

func TestVectorMetadataOmitsEmptyUser(t *testing.T) {
	t.Parallel()

	meta := vectorMetadata("", "g1", types.EpisodicMemory{}.Timestamp)
	if _, ok := meta["user_id"]; ok {
		t.Fatal("group-scope metadata should not carry user_id")
	}
	if meta["group_id"] != "g1" {
		t.Fatalf("group_id = %v", meta["group_id"])
	}
}
