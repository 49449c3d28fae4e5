package disagreement

import (
	"context"
	"sync"
)

// MemoryRepository keeps disagreement records in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
	order   []string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]Record)}
}

func (m *MemoryRepository) Create(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.ParentResponses = append([]ParentResponse(nil), rec.ParentResponses...)
	m.records[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return rec, nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryRepository) Resolve(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.records[rec.ID]
	if !ok {
		return Record{}, ErrNotFound
	}
	stored.ResolvedAt = rec.ResolvedAt
	stored.Resolution = rec.Resolution
	m.records[rec.ID] = stored
	return stored, nil
}

func (m *MemoryRepository) ListUnresolvedByFamily(_ context.Context, familyID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, 4)
	for _, id := range m.order {
		rec := m.records[id]
		if rec.FamilyID == familyID && rec.ResolvedAt == nil {
			out = append(out, rec)
		}
	}
	return out, nil
}
