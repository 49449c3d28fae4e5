package response

import (
	"context"
	"sync"
)

// MemoryRepository keeps responses in process memory, preserving insertion
// order per check.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]Response
	byCheck map[string][]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]Response),
		byCheck: make(map[string][]string),
	}
}

func (m *MemoryRepository) Create(_ context.Context, r Response) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r.SuggestedChanges = append([]string(nil), r.SuggestedChanges...)
	m.byID[r.ID] = r
	m.byCheck[r.CheckID] = append(m.byCheck[r.CheckID], r.ID)
	return r, nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.byID[id]
	if !ok {
		return Response{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryRepository) ListByCheck(_ context.Context, checkID string) ([]Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byCheck[checkID]
	out := make([]Response, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.byID[id])
	}
	return out, nil
}
