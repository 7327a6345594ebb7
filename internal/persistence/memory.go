package persistence

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps the latest checkpoint and the record per session.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
	records     map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints: make(map[string]Checkpoint),
		records:     make(map[string]Record),
	}
}

func (m *MemoryStore) SaveCheckpoint(_ context.Context, cp Checkpoint) error {
	m.mu.Lock()
	m.checkpoints[cp.SessionID] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) SaveRecord(_ context.Context, r Record) error {
	m.mu.Lock()
	m.records[r.SessionID] = r
	delete(m.checkpoints, r.SessionID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetRecord(_ context.Context, sessionID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[sessionID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

// ListRecords returns records ordered by completion time.
func (m *MemoryStore) ListRecords(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out, nil
}

// LatestCheckpoint returns the last checkpoint of a session still running.
func (m *MemoryStore) LatestCheckpoint(sessionID string) (Checkpoint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.checkpoints[sessionID]
	return cp, ok
}
