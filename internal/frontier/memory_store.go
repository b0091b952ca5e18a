package frontier

import (
	"context"
	"sync"

	"github.com/intellsearch/intell/internal/search"
)

// MemoryURLStore is a search.URLStore for tests and single-process
// runs without a database. Records do not survive a restart.
type MemoryURLStore struct {
	mu      sync.RWMutex
	records map[string]search.URLRecord
}

// NewMemoryURLStore builds an empty MemoryURLStore.
func NewMemoryURLStore() *MemoryURLStore {
	return &MemoryURLStore{records: make(map[string]search.URLRecord)}
}

// Upsert implements search.URLStore.
func (s *MemoryURLStore) Upsert(_ context.Context, rec search.URLRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.NormalizedURL] = rec
	return nil
}

// Load implements search.URLStore.
func (s *MemoryURLStore) Load(context.Context) ([]search.URLRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]search.URLRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}
