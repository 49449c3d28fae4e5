package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryRepository keeps members in process memory. Emails compare
// case-insensitively, matching the PostgreSQL repository.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]Member
	byEmail map[string]string
	order   []string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]Member),
		byEmail: make(map[string]string),
	}
}

func (m *MemoryRepository) CreateMember(_ context.Context, params CreateMemberParams) (Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if params.NewFamily {
		for _, member := range m.byID {
			if member.FamilyID == params.FamilyID {
				return Member{}, ErrFamilyExists
			}
		}
	}
	email := strings.ToLower(params.Email)
	if _, exists := m.byEmail[email]; exists {
		return Member{}, ErrDuplicateEmail
	}

	now := time.Now().UTC()
	member := Member{
		ID:           params.ID,
		FamilyID:     params.FamilyID,
		Email:        email,
		FullName:     params.FullName,
		PasswordHash: params.PasswordHash,
		Role:         params.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.byID[member.ID] = member
	m.byEmail[email] = member.ID
	m.order = append(m.order, member.ID)
	return member, nil
}

func (m *MemoryRepository) GetMemberByEmail(_ context.Context, email string) (Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return Member{}, ErrMemberNotFound
	}
	return m.byID[id], nil
}

func (m *MemoryRepository) GetMemberByID(_ context.Context, memberID string) (Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	member, ok := m.byID[memberID]
	if !ok {
		return Member{}, ErrMemberNotFound
	}
	return member, nil
}

func (m *MemoryRepository) ListFamily(_ context.Context, familyID string) ([]Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var members []Member
	for _, id := range m.order {
		if member := m.byID[id]; member.FamilyID == familyID {
			members = append(members, member)
		}
	}
	return members, nil
}
