package cluster

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/memstream-backend/internal/platform/envutil"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/repos"
	"github.com/yungbote/memstream-backend/internal/types"
)

// Callback fires after a MemCell is attached to a cluster. Sync callbacks
// run inline under no lock; async callbacks run on their own goroutine.
// Panics in either are isolated to the callback.
type Callback func(groupID string, cell *types.MemCell, clusterID int)

// Manager does incremental centroid clustering of MemCells per group:
// nearest centroid by cosine similarity wins when it clears the threshold
// and the cluster saw activity within the time gap; otherwise a new cluster
// opens. State lives in memory and is persisted per group after each
// assignment; a restart rehydrates lazily.
type Manager struct {
	mu     sync.Mutex
	log    *logger.Logger
	repo   repos.ClusterStateRepo
	states map[string]*groupState

	threshold float64
	maxGap    time.Duration

	syncCallbacks  []Callback
	asyncCallbacks []Callback
}

func NewManager(repo repos.ClusterStateRepo, baseLog *logger.Logger) *Manager {
	return &Manager{
		log:       baseLog.With("service", "ClusterManager"),
		repo:      repo,
		states:    map[string]*groupState{},
		threshold: envutil.Float("CLUSTER_SIM_THRESHOLD", 0.65),
		maxGap:    envutil.Seconds("CLUSTER_MAX_GAP_SEC", 7*24*3600),
	}
}

// OnClusterAssigned registers a callback; async selects goroutine dispatch.
func (m *Manager) OnClusterAssigned(cb Callback, async bool) {
	if cb == nil {
		return
	}
	m.mu.Lock()
	if async {
		m.asyncCallbacks = append(m.asyncCallbacks, cb)
	} else {
		m.syncCallbacks = append(m.syncCallbacks, cb)
	}
	m.mu.Unlock()
}

// Assign attaches the MemCell to a cluster using its representative vector
// and persists the updated group state. Re-assigning a known event returns
// its existing cluster.
func (m *Manager) Assign(ctx context.Context, groupID string, cell *types.MemCell, vector []float32) (int, error) {
	if cell == nil || groupID == "" {
		return 0, fmt.Errorf("group id and memcell required")
	}
	if len(vector) == 0 {
		return 0, fmt.Errorf("representative vector required")
	}

	m.mu.Lock()
	state, err := m.stateLocked(ctx, groupID)
	if err != nil {
		m.mu.Unlock()
		return 0, err
	}

	if existing, ok := state.Assignments[cell.EventID]; ok {
		m.mu.Unlock()
		return existing, nil
	}

	clusterID := m.pickClusterLocked(state, vector, cell.Timestamp)
	attachLocked(state, clusterID, cell, vector)
	raw, mErr := state.marshal()
	m.mu.Unlock()

	if mErr != nil {
		m.log.Warn("cluster state marshal failed", "group_id", groupID, "error", mErr)
	} else if pErr := m.repo.Upsert(ctx, nil, groupID, raw); pErr != nil {
		m.log.Warn("cluster state persist failed", "group_id", groupID, "error", pErr)
	}

	m.fire(groupID, cell, clusterID)
	return clusterID, nil
}

// stateLocked returns the group's state, rehydrating from the repo on first
// touch. Caller holds the mutex.
func (m *Manager) stateLocked(ctx context.Context, groupID string) (*groupState, error) {
	if state, ok := m.states[groupID]; ok {
		return state, nil
	}

	state := newGroupState()
	if m.repo != nil {
		row, err := m.repo.GetByGroupID(ctx, nil, groupID)
		if err != nil {
			return nil, fmt.Errorf("rehydrate cluster state: %w", err)
		}
		if row != nil && len(row.State) > 0 {
			restored, uErr := unmarshalGroupState(row.State)
			if uErr != nil {
				m.log.Warn("discarding corrupt cluster state", "group_id", groupID, "error", uErr)
			} else {
				state = restored
			}
		}
	}
	m.states[groupID] = state
	return state, nil
}

func (m *Manager) pickClusterLocked(state *groupState, vector []float32, ts time.Time) int {
	best := -1
	bestSim := 0.0
	for id, centroid := range state.Centroids {
		last := state.LastTimestamp[id]
		if gap := ts.Sub(last); gap > m.maxGap || gap < -m.maxGap {
			continue
		}
		sim := Cosine(vector, centroid)
		if sim > bestSim {
			bestSim = sim
			best = id
		}
	}
	if best >= 0 && bestSim >= m.threshold {
		return best
	}
	id := state.NextIndex
	state.NextIndex++
	return id
}

func attachLocked(state *groupState, clusterID int, cell *types.MemCell, vector []float32) {
	centroid, exists := state.Centroids[clusterID]
	if !exists {
		state.Centroids[clusterID] = append([]float32(nil), vector...)
		state.Counts[clusterID] = 1
	} else {
		n := float32(state.Counts[clusterID])
		for i := range centroid {
			if i >= len(vector) {
				break
			}
			centroid[i] = (centroid[i]*n + vector[i]) / (n + 1)
		}
		state.Counts[clusterID]++
	}
	state.LastTimestamp[clusterID] = cell.Timestamp
	state.Assignments[cell.EventID] = clusterID
}

func (m *Manager) fire(groupID string, cell *types.MemCell, clusterID int) {
	m.mu.Lock()
	syncCbs := append([]Callback(nil), m.syncCallbacks...)
	asyncCbs := append([]Callback(nil), m.asyncCallbacks...)
	m.mu.Unlock()

	for _, cb := range syncCbs {
		m.invoke(cb, groupID, cell, clusterID)
	}
	for _, cb := range asyncCbs {
		go m.invoke(cb, groupID, cell, clusterID)
	}
}

func (m *Manager) invoke(cb Callback, groupID string, cell *types.MemCell, clusterID int) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("cluster callback panicked", "group_id", groupID, "cluster_id", clusterID, "panic", r)
		}
	}()
	cb(groupID, cell, clusterID)
}

// AssignmentOf reports the cluster currently holding an event, if any.
func (m *Manager) AssignmentOf(groupID string, eventID uuid.UUID) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[groupID]
	if !ok {
		return 0, false
	}
	id, ok := state.Assignments[eventID]
	return id, ok
}

// Cosine similarity; zero when either vector has zero norm.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
