// Package catalogtest provides an in-memory catalog store for tests.
package catalogtest

import (
	"context"
	"sync"

	"github.com/odyssey-erp/replenishment/internal/catalog"
)

// MemoryStore keeps variants in memory and counts writes.
type MemoryStore struct {
	mu      sync.Mutex
	records []catalog.Record
	writes  int
	batches int
	// FailApply, when set, is returned by Apply.
	FailApply error
}

// NewMemoryStore seeds the store with records.
func NewMemoryStore(records ...catalog.Record) *MemoryStore {
	s := &MemoryStore{records: make([]catalog.Record, len(records))}
	copy(s.records, records)
	return s
}

// Load returns a copy of the stored records.
func (s *MemoryStore) Load(context.Context) ([]catalog.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Apply writes updates to matching variants.
func (s *MemoryStore) Apply(_ context.Context, updates []catalog.Update) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailApply != nil {
		return 0, s.FailApply
	}
	s.batches++
	written := 0
	for _, u := range updates {
		if u.Empty() {
			continue
		}
		for i := range s.records {
			if s.records[i].VariantID == u.VariantID {
				u.ApplyTo(&s.records[i])
				written++
			}
		}
	}
	s.writes += written
	return written, nil
}

// Writes returns the number of variant updates applied so far.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Record returns the stored variant with id.
func (s *MemoryStore) Record(id int64) (catalog.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.VariantID == id {
			return r, true
		}
	}
	return catalog.Record{}, false
}
