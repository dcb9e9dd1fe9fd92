// Package inventorytest provides an in-memory movement snapshot store for tests.
package inventorytest

import (
	"context"
	"sync"

	"github.com/odyssey-erp/replenishment/internal/inventory"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

// MemorySnapshots keeps snapshots keyed by source and signature.
type MemorySnapshots struct {
	mu        sync.Mutex
	snapshots map[string]inventory.Snapshot
	upserts   int
}

// NewMemorySnapshots returns an empty store.
func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{snapshots: make(map[string]inventory.Snapshot)}
}

// UpsertSnapshot stores snap, replacing any snapshot with the same key.
func (m *MemorySnapshots) UpsertSnapshot(_ context.Context, snap inventory.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	m.snapshots[snap.Source+"/"+snap.PeriodSignature] = snap
	return nil
}

// GetSnapshot returns shared.ErrNotFound when no snapshot is stored.
func (m *MemorySnapshots) GetSnapshot(_ context.Context, source, signature string) (inventory.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[source+"/"+signature]
	if !ok {
		return inventory.Snapshot{}, shared.ErrNotFound
	}
	return snap, nil
}

// Upserts returns the number of stored snapshots written so far.
func (m *MemorySnapshots) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}
