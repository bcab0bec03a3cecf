package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// MemoryRepository keeps the catalog in process memory.
type MemoryRepository struct {
	mu         sync.RWMutex
	now        func() time.Time
	privileges map[string]Privilege
	roles      map[string]Role
	profiles   map[string]Profile
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		now:        time.Now,
		privileges: make(map[string]Privilege),
		roles:      make(map[string]Role),
		profiles:   make(map[string]Profile),
	}
}

var _ RepositoryPort = (*MemoryRepository)(nil)

func (m *MemoryRepository) InsertPrivilege(_ context.Context, p Privilege) (Privilege, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.privileges[p.Code]; ok {
		return Privilege{}, fmt.Errorf("catalog: privilege %s: %w", p.Code, shared.ErrDuplicateCode)
	}
	p.CreatedAt = m.now().UTC()
	p.UpdatedAt = p.CreatedAt
	m.privileges[p.Code] = p
	return p, nil
}

func (m *MemoryRepository) UpdatePrivilege(_ context.Context, code, name, description string) (Privilege, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.privileges[code]
	if !ok {
		return Privilege{}, fmt.Errorf("catalog: privilege %s: %w", code, shared.ErrNotFound)
	}
	p.Name = name
	p.Description = description
	p.UpdatedAt = m.now().UTC()
	m.privileges[code] = p
	return p, nil
}

func (m *MemoryRepository) ListPrivileges(_ context.Context, filter PrivilegeFilter) ([]Privilege, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	search := strings.ToLower(filter.Search)
	out := make([]Privilege, 0, len(m.privileges))
	for _, p := range m.privileges {
		if filter.TypeCode != "" && p.TypeCode != filter.TypeCode {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Code+" "+p.Name), search) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryRepository) PrivilegesByCodes(_ context.Context, codes []string) ([]Privilege, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Privilege, 0, len(codes))
	for _, c := range codes {
		if p, ok := m.privileges[c]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryRepository) InsertRole(_ context.Context, r Role) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[r.Code]; ok {
		return Role{}, fmt.Errorf("catalog: role %s: %w", r.Code, shared.ErrDuplicateCode)
	}
	r.Privileges = cloneCodes(r.Privileges)
	r.CreatedAt = m.now().UTC()
	r.UpdatedAt = r.CreatedAt
	m.roles[r.Code] = r
	return cloneRole(r), nil
}

func (m *MemoryRepository) UpdateRole(_ context.Context, r Role) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.roles[r.Code]
	if !ok {
		return Role{}, fmt.Errorf("catalog: role %s: %w", r.Code, shared.ErrNotFound)
	}
	existing.Name = r.Name
	existing.Description = r.Description
	existing.Privileges = cloneCodes(r.Privileges)
	existing.UpdatedAt = m.now().UTC()
	m.roles[r.Code] = existing
	return cloneRole(existing), nil
}

func (m *MemoryRepository) GetRole(_ context.Context, code string) (Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roles[code]
	if !ok {
		return Role{}, fmt.Errorf("catalog: role %s: %w", code, shared.ErrNotFound)
	}
	return cloneRole(r), nil
}

func (m *MemoryRepository) ListRoles(_ context.Context) ([]Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, cloneRole(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryRepository) RolesByCodes(_ context.Context, codes []string) ([]Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Role, 0, len(codes))
	for _, c := range codes {
		if r, ok := m.roles[c]; ok {
			out = append(out, cloneRole(r))
		}
	}
	return out, nil
}

func (m *MemoryRepository) InsertProfile(_ context.Context, p Profile) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.Code]; ok {
		return Profile{}, fmt.Errorf("catalog: profile %s: %w", p.Code, shared.ErrDuplicateCode)
	}
	p.Roles = cloneCodes(p.Roles)
	p.CreatedAt = m.now().UTC()
	p.UpdatedAt = p.CreatedAt
	m.profiles[p.Code] = p
	return cloneProfile(p), nil
}

func (m *MemoryRepository) UpdateProfile(_ context.Context, p Profile) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.profiles[p.Code]
	if !ok {
		return Profile{}, fmt.Errorf("catalog: profile %s: %w", p.Code, shared.ErrNotFound)
	}
	existing.Name = p.Name
	existing.Description = p.Description
	existing.Roles = cloneCodes(p.Roles)
	existing.UpdatedAt = m.now().UTC()
	m.profiles[p.Code] = existing
	return cloneProfile(existing), nil
}

func (m *MemoryRepository) GetProfile(_ context.Context, code string) (Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[code]
	if !ok {
		return Profile{}, fmt.Errorf("catalog: profile %s: %w", code, shared.ErrNotFound)
	}
	return cloneProfile(p), nil
}

func (m *MemoryRepository) ListProfiles(_ context.Context) ([]Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, cloneProfile(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func cloneCodes(codes []string) []string {
	out := make([]string, len(codes))
	copy(out, codes)
	return out
}

func cloneRole(r Role) Role {
	r.Privileges = cloneCodes(r.Privileges)
	return r
}

func cloneProfile(p Profile) Profile {
	p.Roles = cloneCodes(p.Roles)
	return p
}
