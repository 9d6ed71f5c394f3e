package cluster

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/types"
)

type fakeStateRepo struct {
	mu    sync.Mutex
	saved map[string]datatypes.JSON
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{saved: map[string]datatypes.JSON{}}
}

func (f *fakeStateRepo) Upsert(ctx context.Context, tx *gorm.DB, groupID string, state datatypes.JSON) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[groupID] = append(datatypes.JSON(nil), state...)
	return nil
}

func (f *fakeStateRepo) GetByGroupID(ctx context.Context, tx *gorm.DB, groupID string) (*types.ClusterStateRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.saved[groupID]
	if !ok {
		return nil, nil
	}
	return &types.ClusterStateRow{GroupID: groupID, State: raw}, nil
}

func testManager(t *testing.T) (*Manager, *fakeStateRepo) {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	repo := newFakeStateRepo()
	return NewManager(repo, log), repo
}

func cellAt(ts time.Time) *types.MemCell {
	return &types.MemCell{EventID: uuid.New(), GroupID: "g1", Timestamp: ts}
}

func TestAssignSimilarVectorsShareCluster(t *testing.T) {
	m, _ := testManager(t)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	first, err := m.Assign(context.Background(), "g1", cellAt(base), []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	second, err := m.Assign(context.Background(), "g1", cellAt(base.Add(time.Hour)), []float32{0.95, 0.05, 0})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if first != second {
		t.Fatalf("similar vectors split clusters: %d vs %d", first, second)
	}

	third, err := m.Assign(context.Background(), "g1", cellAt(base.Add(2*time.Hour)), []float32{0, 0, 1})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if third == first {
		t.Fatal("orthogonal vector joined the wrong cluster")
	}
}

func TestAssignRespectsTimeGap(t *testing.T) {
	m, _ := testManager(t)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	first, err := m.Assign(context.Background(), "g1", cellAt(base), []float32{1, 0})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	// Identical vector but eight days later: stale cluster is skipped.
	second, err := m.Assign(context.Background(), "g1", cellAt(base.Add(8*24*time.Hour)), []float32{1, 0})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if first == second {
		t.Fatal("cluster older than the max gap was reused")
	}
}

func TestAssignIsIdempotentPerEvent(t *testing.T) {
	m, _ := testManager(t)
	cell := cellAt(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))

	first, err := m.Assign(context.Background(), "g1", cell, []float32{1, 0})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	again, err := m.Assign(context.Background(), "g1", cell, []float32{0, 1})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if first != again {
		t.Fatalf("re-assignment moved event: %d vs %d", first, again)
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	m, repo := testManager(t)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	cell := cellAt(base)
	clusterID, err := m.Assign(context.Background(), "g1", cell, []float32{1, 0})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	revived := NewManager(repo, log)
	// Same vector shortly after should land in the persisted cluster.
	got, err := revived.Assign(context.Background(), "g1", cellAt(base.Add(time.Hour)), []float32{1, 0})
	if err != nil {
		t.Fatalf("assign after restart: %v", err)
	}
	if got != clusterID {
		t.Fatalf("rehydrated manager opened new cluster: %d vs %d", got, clusterID)
	}
	if id, ok := revived.AssignmentOf("g1", cell.EventID); !ok || id != clusterID {
		t.Fatalf("rehydrated assignment lookup = (%d, %v)", id, ok)
	}
}

func TestCallbackPanicIsIsolated(t *testing.T) {
	m, _ := testManager(t)

	var fired bool
	m.OnClusterAssigned(func(groupID string, cell *types.MemCell, clusterID int) {
		panic("boom")
	}, false)
	m.OnClusterAssigned(func(groupID string, cell *types.MemCell, clusterID int) {
		fired = true
	}, false)

	if _, err := m.Assign(context.Background(), "g1", cellAt(time.Now()), []float32{1}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !fired {
		t.Fatal("panicking callback suppressed later callbacks")
	}
}

func TestCosine(t *testing.T) {
	t.Parallel()

	if got := Cosine([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Fatalf("identical vectors cosine = %f", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("orthogonal cosine = %f", got)
	}
	if got := Cosine([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Fatalf("zero-norm cosine = %f", got)
	}
}
