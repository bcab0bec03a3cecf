package structures

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// MemoryRepository is an id-indexed arena of structures.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	nodes  map[int64]Structure
	now    func() time.Time
}

// NewMemoryRepository constructs an empty arena.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nodes: make(map[int64]Structure), now: time.Now}
}

var _ RepositoryPort = (*MemoryRepository)(nil)

func (m *MemoryRepository) Get(_ context.Context, id int64) (Structure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.nodes[id]
	if !ok {
		return Structure{}, fmt.Errorf("structures: %d: %w", id, shared.ErrNotFound)
	}
	return clone(s), nil
}

func (m *MemoryRepository) Insert(_ context.Context, s Structure) (Structure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	s.CreatedAt = m.now().UTC()
	s.UpdatedAt = s.CreatedAt
	m.nodes[s.ID] = clone(s)
	return clone(s), nil
}

func (m *MemoryRepository) Update(_ context.Context, s Structure) (Structure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[s.ID]; !ok {
		return Structure{}, fmt.Errorf("structures: %d: %w", s.ID, shared.ErrNotFound)
	}
	s.UpdatedAt = m.now().UTC()
	m.nodes[s.ID] = clone(s)
	return clone(s), nil
}

func (m *MemoryRepository) Children(_ context.Context, parentID int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []int64
	for id, s := range m.nodes {
		if s.ParentID != nil && *s.ParentID == parentID {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *MemoryRepository) ListByTypes(_ context.Context, types []string) ([]Structure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	var out []Structure
	for _, s := range m.nodes {
		if _, ok := allowed[s.TypeCode]; ok {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) List(_ context.Context) ([]Structure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Structure, 0, len(m.nodes))
	for _, s := range m.nodes {
		out = append(out, clone(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func clone(s Structure) Structure {
	if s.ParentID != nil {
		p := *s.ParentID
		s.ParentID = &p
	}
	return s
}
