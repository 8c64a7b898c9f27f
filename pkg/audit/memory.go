package audit

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Used for tests and when no
// database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Record
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, r *Record) error {
	if err := ctx.Err(); err != nil {
		return storageError(DriverMemory, "save", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return storageError(DriverMemory, "save", errStoreClosed)
	}
	cp := *r
	m.records = append(m.records, &cp)
	return nil
}

// Query implements Store.
func (m *MemoryStore) Query(ctx context.Context, f Filter) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageError(DriverMemory, "query", err)
	}

	m.mu.RLock()
	var matched []*Record
	for _, r := range m.records {
		if f.Matches(r) {
			cp := *r
			matched = append(matched, &cp)
		}
	}
	m.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b *Record) int {
		return b.Start.Compare(a.Start)
	})

	offset := max(f.Offset, 0)
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > f.limit() {
		matched = matched[:f.limit()]
	}
	return matched, nil
}

// Prune implements Store.
func (m *MemoryStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storageError(DriverMemory, "prune", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.records)
	m.records = slices.DeleteFunc(m.records, func(r *Record) bool {
		return r.Start.Before(before)
	})
	return int64(n - len(m.records)), nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
