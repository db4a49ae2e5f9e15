package history

import (
	"context"
	"sync"
)

// Store persists the full record set. Save replaces whatever was stored before.
type Store interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}

// Locker is implemented by stores that can serialize writers across processes.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore returns a store seeded with records.
func NewMemoryStore(records ...Record) *MemoryStore {
	return &MemoryStore{records: append([]Record(nil), records...)}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Record(nil), m.records...), nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append([]Record(nil), records...)
	return nil
}

var _ Store = (*MemoryStore)(nil)
