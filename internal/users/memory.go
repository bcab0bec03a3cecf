package users

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// MemoryRepository keeps users in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]User
	byEmail map[string]int64
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[int64]User), byEmail: make(map[string]int64)}
}

var _ RepositoryPort = (*MemoryRepository)(nil)

func (m *MemoryRepository) Insert(_ context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[u.Email]; ok {
		return User{}, fmt.Errorf("users: email %s: %w", u.Email, shared.ErrDuplicateCode)
	}
	m.nextID++
	u.ID = m.nextID
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u.ID
	return u, nil
}

func (m *MemoryRepository) Get(_ context.Context, id int64) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return User{}, fmt.Errorf("users: %d: %w", id, shared.ErrNotFound)
	}
	return u, nil
}

func (m *MemoryRepository) List(_ context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]User, 0, len(m.byID))
	for _, u := range m.byID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) SetBlocked(_ context.Context, id int64, blocked bool) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return User{}, fmt.Errorf("users: %d: %w", id, shared.ErrNotFound)
	}
	u.Blocked = blocked
	u.UpdatedAt = time.Now().UTC()
	m.byID[id] = u
	return u, nil
}
