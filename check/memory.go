package check

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps checks in process memory. It backs tests and the
// single-node `STORE=memory` mode.
type MemoryRepository struct {
	mu     sync.RWMutex
	checks map[string]Check
	order  []string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{checks: make(map[string]Check)}
}

func (m *MemoryRepository) Create(_ context.Context, c Check) (Check, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checks[c.ID] = c
	m.order = append(m.order, c.ID)
	return c, nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (Check, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.checks[id]
	if !ok {
		return Check{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryRepository) Update(_ context.Context, c Check) (Check, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.checks[c.ID]; !ok {
		return Check{}, ErrNotFound
	}
	m.checks[c.ID] = c
	return c, nil
}

func (m *MemoryRepository) ListByChild(_ context.Context, childID string) ([]Check, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Check, 0, 4)
	// Walk insertion order backwards so equal CreatedAt values keep newest first.
	for i := len(m.order) - 1; i >= 0; i-- {
		c := m.checks[m.order[i]]
		if c.ChildID == childID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
