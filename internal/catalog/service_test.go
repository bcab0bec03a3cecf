package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewMemoryRepository(), nil)
}

func seedPrivileges(t *testing.T, svc *Service, codes ...string) {
	t.Helper()
	for _, c := range codes {
		_, err := svc.CreatePrivilege(context.Background(), Privilege{Code: c, Name: c, TypeCode: "api"})
		require.NoError(t, err)
	}
}

func TestCreateDuplicateCodes(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.CreatePrivilege(ctx, Privilege{Code: "p1", Name: "Read"})
	require.NoError(t, err)
	_, err = svc.CreatePrivilege(ctx, Privilege{Code: " P1 ", Name: "Read again"})
	require.ErrorIs(t, err, shared.ErrDuplicateCode)

	_, err = svc.CreateRole(ctx, Role{Code: "R1", Name: "Reader"})
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, Role{Code: "r1", Name: "Reader"})
	require.ErrorIs(t, err, shared.ErrDuplicateCode)

	_, err = svc.CreateProfile(ctx, Profile{Code: "PR", Name: "Profile"})
	require.NoError(t, err)
	_, err = svc.CreateProfile(ctx, Profile{Code: "PR", Name: "Profile"})
	require.ErrorIs(t, err, shared.ErrDuplicateCode)
}

func TestCreateRequiresCodeAndName(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.CreateRole(context.Background(), Role{Code: "  ", Name: "x"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateRoleReplacesChildren(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedPrivileges(t, svc, "P1", "P2", "P3")

	_, err := svc.CreateRole(ctx, Role{Code: "R1", Name: "Role", Privileges: []string{"P1", "P2"}})
	require.NoError(t, err)

	updated, err := svc.UpdateRole(ctx, "r1", "Role v2", "desc", []string{"P3"})
	require.NoError(t, err)
	require.Equal(t, []string{"P3"}, updated.Privileges)
	require.Equal(t, "Role v2", updated.Name)

	got, err := svc.GetRole(ctx, "R1")
	require.NoError(t, err)
	require.Equal(t, []string{"P3"}, got.Privileges)
}

func TestUpdateMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.UpdateRole(ctx, "NOPE", "n", "", nil)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.UpdateProfile(ctx, "NOPE", "n", "", nil)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.UpdatePrivilege(ctx, "NOPE", "n", "")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRoleMayReferenceUnknownPrivilege(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedPrivileges(t, svc, "P1")

	_, err := svc.CreateRole(ctx, Role{Code: "R1", Name: "Role", Privileges: []string{"P1", "GHOST"}})
	require.NoError(t, err)

	privs := svc.PrivilegesByRoleCodes(ctx, []string{"R1"})
	require.Len(t, privs, 1)
	require.Equal(t, "P1", privs[0].Code)
}

func TestProjectionsNeverFail(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.Empty(t, svc.PrivilegesByRoleCodes(ctx, nil))
	require.Empty(t, svc.PrivilegesByRoleCodes(ctx, []string{"UNKNOWN"}))
	require.Empty(t, svc.RolesByProfileCode(ctx, "UNKNOWN"))
	require.Empty(t, svc.RolesByProfileCode(ctx, ""))
}

func TestRolesByProfileCode(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, err := svc.CreateRole(ctx, Role{Code: "R2", Name: "Two"})
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, Role{Code: "R1", Name: "One"})
	require.NoError(t, err)
	_, err = svc.CreateProfile(ctx, Profile{Code: "PR", Name: "P", Roles: []string{"r2", "R1", "MISSING"}})
	require.NoError(t, err)

	roles := svc.RolesByProfileCode(ctx, "pr")
	require.Len(t, roles, 2)
	require.Equal(t, "R1", roles[0].Code)
	require.Equal(t, "R2", roles[1].Code)
}

type failingRepo struct {
	*MemoryRepository
}

func (failingRepo) RolesByCodes(context.Context, []string) ([]Role, error) {
	return nil, errors.New("db down")
}

func TestProjectionSwallowsStorageErrors(t *testing.T) {
	svc := NewService(failingRepo{NewMemoryRepository()}, nil)
	require.Empty(t, svc.PrivilegesByRoleCodes(context.Background(), []string{"R1"}))

	_, err := svc.LookupPrivilegesByRoleCodes(context.Background(), []string{"R1"})
	require.ErrorContains(t, err, "db down")
	privs, err := svc.LookupPrivilegesByRoleCodes(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, privs)
}

func TestListPrivilegesFilter(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, err := svc.CreatePrivilege(ctx, Privilege{Code: "MAIL.READ", Name: "Read mail", TypeCode: "mail"})
	require.NoError(t, err)
	_, err = svc.CreatePrivilege(ctx, Privilege{Code: "DOC.READ", Name: "Read doc", TypeCode: "doc"})
	require.NoError(t, err)

	privs, err := svc.ListPrivileges(ctx, PrivilegeFilter{TypeCode: "mail"})
	require.NoError(t, err)
	require.Len(t, privs, 1)
	require.Equal(t, "MAIL.READ", privs[0].Code)

	privs, err = svc.ListPrivileges(ctx, PrivilegeFilter{Search: "doc"})
	require.NoError(t, err)
	require.Len(t, privs, 1)
}
