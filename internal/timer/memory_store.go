package timer

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a non-durable Store for tests and dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	// FailSave, when set, is returned by Save without storing anything.
	FailSave error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) LoadAll(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSave != nil {
		return s.FailSave
	}
	s.records[rec.EntityID] = rec
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, entityID)
	return nil
}

// Get returns the record for entityID.
func (s *MemoryStore) Get(entityID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[entityID]
	return r, ok
}

// SetFailSave toggles Save failures.
func (s *MemoryStore) SetFailSave(err error) {
	s.mu.Lock()
	s.FailSave = err
	s.mu.Unlock()
}
