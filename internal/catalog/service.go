package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// RepositoryPort defines data access methods for the catalog.
type RepositoryPort interface {
	InsertPrivilege(ctx context.Context, p Privilege) (Privilege, error)
	UpdatePrivilege(ctx context.Context, code, name, description string) (Privilege, error)
	ListPrivileges(ctx context.Context, filter PrivilegeFilter) ([]Privilege, error)
	PrivilegesByCodes(ctx context.Context, codes []string) ([]Privilege, error)

	InsertRole(ctx context.Context, r Role) (Role, error)
	UpdateRole(ctx context.Context, r Role) (Role, error)
	GetRole(ctx context.Context, code string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	RolesByCodes(ctx context.Context, codes []string) ([]Role, error)

	InsertProfile(ctx context.Context, p Profile) (Profile, error)
	UpdateProfile(ctx context.Context, p Profile) (Profile, error)
	GetProfile(ctx context.Context, code string) (Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
}

// Service holds privileges, roles and profiles.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// CreatePrivilege stores a new privilege.
func (s *Service) CreatePrivilege(ctx context.Context, p Privilege) (Privilege, error) {
	p.Code = shared.NormalizeCode(p.Code)
	p.TypeCode = shared.NormalizeCode(p.TypeCode)
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	if p.Code == "" || p.Name == "" {
		return Privilege{}, fmt.Errorf("catalog: privilege code and name required: %w", shared.ErrValidation)
	}
	return s.repo.InsertPrivilege(ctx, p)
}

// UpdatePrivilege changes the mutable fields of a privilege.
func (s *Service) UpdatePrivilege(ctx context.Context, code, name, description string) (Privilege, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Privilege{}, fmt.Errorf("catalog: privilege name required: %w", shared.ErrValidation)
	}
	return s.repo.UpdatePrivilege(ctx, shared.NormalizeCode(code), name, strings.TrimSpace(description))
}

// ListPrivileges returns privileges ordered by code.
func (s *Service) ListPrivileges(ctx context.Context, filter PrivilegeFilter) ([]Privilege, error) {
	filter.TypeCode = shared.NormalizeCode(filter.TypeCode)
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.ListPrivileges(ctx, filter)
}

// CreateRole stores a new role with its privilege codes.
func (s *Service) CreateRole(ctx context.Context, r Role) (Role, error) {
	r.Code = shared.NormalizeCode(r.Code)
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	r.Privileges = shared.NormalizeCodes(r.Privileges)
	if r.Code == "" || r.Name == "" {
		return Role{}, fmt.Errorf("catalog: role code and name required: %w", shared.ErrValidation)
	}
	return s.repo.InsertRole(ctx, r)
}

// UpdateRole replaces the role's name, description and full privilege set.
func (s *Service) UpdateRole(ctx context.Context, code, name, description string, children []string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("catalog: role name required: %w", shared.ErrValidation)
	}
	return s.repo.UpdateRole(ctx, Role{
		Code:        shared.NormalizeCode(code),
		Name:        name,
		Description: strings.TrimSpace(description),
		Privileges:  shared.NormalizeCodes(children),
	})
}

// GetRole fetches a role by code.
func (s *Service) GetRole(ctx context.Context, code string) (Role, error) {
	return s.repo.GetRole(ctx, shared.NormalizeCode(code))
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// CreateProfile stores a new profile with its role codes.
func (s *Service) CreateProfile(ctx context.Context, p Profile) (Profile, error) {
	p.Code = shared.NormalizeCode(p.Code)
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.Roles = shared.NormalizeCodes(p.Roles)
	if p.Code == "" || p.Name == "" {
		return Profile{}, fmt.Errorf("catalog: profile code and name required: %w", shared.ErrValidation)
	}
	return s.repo.InsertProfile(ctx, p)
}

// UpdateProfile replaces the profile's name, description and full role set.
func (s *Service) UpdateProfile(ctx context.Context, code, name, description string, children []string) (Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Profile{}, fmt.Errorf("catalog: profile name required: %w", shared.ErrValidation)
	}
	return s.repo.UpdateProfile(ctx, Profile{
		Code:        shared.NormalizeCode(code),
		Name:        name,
		Description: strings.TrimSpace(description),
		Roles:       shared.NormalizeCodes(children),
	})
}

// GetProfile fetches a profile by code.
func (s *Service) GetProfile(ctx context.Context, code string) (Profile, error) {
	return s.repo.GetProfile(ctx, shared.NormalizeCode(code))
}

// ListProfiles returns all profiles.
func (s *Service) ListProfiles(ctx context.Context) ([]Profile, error) {
	return s.repo.ListProfiles(ctx)
}

// PrivilegesByRoleCodes projects role codes onto the privileges they bundle.
// Unknown roles and privileges are skipped. Storage errors yield an empty set.
func (s *Service) PrivilegesByRoleCodes(ctx context.Context, codes []string) []Privilege {
	privs, err := s.LookupPrivilegesByRoleCodes(ctx, codes)
	if err != nil {
		s.logger.Warn("catalog privileges by role codes", slog.Any("error", err))
		return []Privilege{}
	}
	return privs
}

// LookupPrivilegesByRoleCodes is PrivilegesByRoleCodes with storage errors
// returned to the caller.
func (s *Service) LookupPrivilegesByRoleCodes(ctx context.Context, codes []string) ([]Privilege, error) {
	codes = shared.NormalizeCodes(codes)
	if len(codes) == 0 {
		return []Privilege{}, nil
	}
	roles, err := s.repo.RolesByCodes(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("catalog: roles by codes: %w", err)
	}
	var privCodes []string
	for _, r := range roles {
		privCodes = append(privCodes, r.Privileges...)
	}
	privCodes = shared.NormalizeCodes(privCodes)
	if len(privCodes) == 0 {
		return []Privilege{}, nil
	}
	privs, err := s.repo.PrivilegesByCodes(ctx, privCodes)
	if err != nil {
		return nil, fmt.Errorf("catalog: privileges by codes: %w", err)
	}
	sort.Slice(privs, func(i, j int) bool { return privs[i].Code < privs[j].Code })
	return privs, nil
}

// RolesByProfileCode returns the roles bundled in a profile, or an empty set.
func (s *Service) RolesByProfileCode(ctx context.Context, code string) []Role {
	profile, err := s.repo.GetProfile(ctx, shared.NormalizeCode(code))
	if err != nil {
		return []Role{}
	}
	if len(profile.Roles) == 0 {
		return []Role{}
	}
	roles, err := s.repo.RolesByCodes(ctx, profile.Roles)
	if err != nil {
		s.logger.Warn("catalog roles by profile", slog.String("profile", profile.Code), slog.Any("error", err))
		return []Role{}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Code < roles[j].Code })
	return roles
}
