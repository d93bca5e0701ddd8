package favorites

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps favorites for the lifetime of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[uuid.UUID]Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[uuid.UUID]Record)}
}

func (m *MemoryStore) Add(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.UserID == rec.UserID && r.Filter == rec.Filter {
			return ErrDuplicate
		}
	}
	m.recs[rec.ID] = rec
	return nil
}

func (m *MemoryStore) List(_ context.Context, userID string) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, len(m.recs))
	for _, r := range m.recs {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (m *MemoryStore) Get(_ context.Context, userID string, id uuid.UUID) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recs[id]
	if !ok || r.UserID != userID {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) Delete(_ context.Context, userID string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok || r.UserID != userID {
		return ErrNotFound
	}
	delete(m.recs, id)
	return nil
}
