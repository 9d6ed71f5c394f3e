package cluster

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// groupState is the in-memory clustering state for one group. The manager's
// mutex guards all access.
type groupState struct {
	Centroids     map[int][]float32
	Counts        map[int]int
	LastTimestamp map[int]time.Time
	Assignments   map[uuid.UUID]int
	NextIndex     int
}

func newGroupState() *groupState {
	return &groupState{
		Centroids:     map[int][]float32{},
		Counts:        map[int]int{},
		LastTimestamp: map[int]time.Time{},
		Assignments:   map[uuid.UUID]int{},
	}
}

// persistedState is the JSON layout stored in cluster_state.state. Map keys
// are strings because JSON objects demand it.
type persistedState struct {
	Centroids     map[string][]float32 `json:"centroids"`
	Counts        map[string]int       `json:"counts"`
	LastTimestamp map[string]time.Time `json:"last_timestamp"`
	Assignments   map[string]int       `json:"assignments"`
	NextIndex     int                  `json:"next_cluster_index"`
}

func (s *groupState) marshal() ([]byte, error) {
	p := persistedState{
		Centroids:     map[string][]float32{},
		Counts:        map[string]int{},
		LastTimestamp: map[string]time.Time{},
		Assignments:   map[string]int{},
		NextIndex:     s.NextIndex,
	}
	for id, c := range s.Centroids {
		key := strconv.Itoa(id)
		p.Centroids[key] = c
		p.Counts[key] = s.Counts[id]
		p.LastTimestamp[key] = s.LastTimestamp[id]
	}
	for eventID, clusterID := range s.Assignments {
		p.Assignments[eventID.String()] = clusterID
	}
	return json.Marshal(p)
}

func unmarshalGroupState(raw []byte) (*groupState, error) {
	var p persistedState
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	s := newGroupState()
	s.NextIndex = p.NextIndex
	for key, c := range p.Centroids {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		s.Centroids[id] = c
		s.Counts[id] = p.Counts[key]
		s.LastTimestamp[id] = p.LastTimestamp[key]
	}
	for key, clusterID := range p.Assignments {
		eventID, err := uuid.Parse(key)
		if err != nil {
			continue
		}
		s.Assignments[eventID] = clusterID
	}
	return s, nil
}
