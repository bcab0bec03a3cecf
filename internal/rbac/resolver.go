package rbac

import (
	"context"
	"sort"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-access/internal/catalog"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// CatalogPort is the catalog surface the resolver reads from.
type CatalogPort interface {
	GetProfile(ctx context.Context, code string) (catalog.Profile, error)
	PrivilegesByRoleCodes(ctx context.Context, codes []string) []catalog.Privilege
	LookupPrivilegesByRoleCodes(ctx context.Context, codes []string) ([]catalog.Privilege, error)
}

// Resolver computes effective privilege sets.
type Resolver struct {
	catalog CatalogPort
	group   singleflight.Group
}

// NewResolver constructs a Resolver.
func NewResolver(c CatalogPort) *Resolver {
	return &Resolver{catalog: c}
}

// ResolveForRoles unions the privileges of roleCodes, deduplicated by code and
// sorted by code. Unknown roles contribute nothing.
func (r *Resolver) ResolveForRoles(ctx context.Context, roleCodes []string) []catalog.Privilege {
	roleCodes = shared.NormalizeCodes(roleCodes)
	if len(roleCodes) == 0 {
		return []catalog.Privilege{}
	}
	return union(r.catalog.PrivilegesByRoleCodes(ctx, roleCodes))
}

// ResolveForProfile resolves the privileges of every role in the profile.
// It fails when the profile is unknown or the catalog cannot be read.
// Concurrent calls for one profile share a lookup that outlives the
// cancellation of any single caller.
func (r *Resolver) ResolveForProfile(ctx context.Context, profileCode string) ([]catalog.Privilege, error) {
	key := shared.NormalizeCode(profileCode)
	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		profile, err := r.catalog.GetProfile(detached, key)
		if err != nil {
			return nil, err
		}
		privs, err := r.catalog.LookupPrivilegesByRoleCodes(detached, profile.Roles)
		if err != nil {
			return nil, err
		}
		return union(privs), nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		resolved := res.Val.([]catalog.Privilege)
		out := make([]catalog.Privilege, len(resolved))
		copy(out, resolved)
		return out, nil
	}
}

func union(privs []catalog.Privilege) []catalog.Privilege {
	seen := make(map[string]catalog.Privilege, len(privs))
	for _, p := range privs {
		seen[p.Code] = p
	}
	out := make([]catalog.Privilege, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// PrivilegeCodes extracts the codes of privs preserving order.
func PrivilegeCodes(privs []catalog.Privilege) []string {
	out := make([]string, len(privs))
	for i, p := range privs {
		out[i] = p.Code
	}
	return out
}
