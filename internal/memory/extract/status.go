package extract

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

type statusEntry struct {
	Status    TaskStatus
	UpdatedAt time.Time
}

// statusMap tracks request_id -> task status with TTL-based purging so the
// map cannot grow without bound.
type statusMap struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]statusEntry
	ttl     time.Duration
}

func newStatusMap(ttl time.Duration) *statusMap {
	return &statusMap{
		entries: map[uuid.UUID]statusEntry{},
		ttl:     ttl,
	}
}

func (s *statusMap) set(id uuid.UUID, status TaskStatus) {
	s.mu.Lock()
	s.entries[id] = statusEntry{Status: status, UpdatedAt: time.Now()}
	s.mu.Unlock()
}

func (s *statusMap) get(id uuid.UUID) (TaskStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	return entry.Status, ok
}

// purgeExpired drops terminal entries older than the TTL. In-flight entries
// are kept regardless of age.
func (s *statusMap) purgeExpired() int {
	cutoff := time.Now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, entry := range s.entries {
		if entry.UpdatedAt.After(cutoff) {
			continue
		}
		if entry.Status == StatusCompleted || entry.Status == StatusFailed {
			delete(s.entries, id)
			purged++
		}
	}
	return purged
}
