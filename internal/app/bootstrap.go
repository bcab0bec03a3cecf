package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-access/internal/associations"
	"github.com/odyssey-erp/odyssey-access/internal/catalog"
	"github.com/odyssey-erp/odyssey-access/internal/session"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
	"github.com/odyssey-erp/odyssey-access/internal/structures"
	"github.com/odyssey-erp/odyssey-access/internal/users"
)

// AdminCode names the role and profile carrying every administrative privilege.
const AdminCode = "ACCESS_ADMIN"

// BootstrapInput describes the first administrator.
type BootstrapInput struct {
	Email         string
	StructureName string
	StructureType string
}

// Bootstrap seeds administrative privileges, the admin role and profile, a
// root structure and an admin user holding that profile, then issues
// credentials for it. Running it again reuses what already exists.
func (s *Services) Bootstrap(ctx context.Context, in BootstrapInput) (session.Result, error) {
	if strings.TrimSpace(in.Email) == "" {
		return session.Result{}, fmt.Errorf("bootstrap: email required: %w", shared.ErrValidation)
	}
	if in.StructureType == "" {
		in.StructureType = "ORG"
	}
	if in.StructureName == "" {
		in.StructureName = "Root"
	}

	for _, code := range shared.CoreScopes() {
		_, err := s.Catalog.CreatePrivilege(ctx, catalog.Privilege{Code: code, Name: code, TypeCode: "ACCESS"})
		if err != nil && !errors.Is(err, shared.ErrDuplicateCode) {
			return session.Result{}, err
		}
	}
	_, err := s.Catalog.CreateRole(ctx, catalog.Role{Code: AdminCode, Name: "Access administrator", Privileges: shared.CoreScopes()})
	if errors.Is(err, shared.ErrDuplicateCode) {
		_, err = s.Catalog.UpdateRole(ctx, AdminCode, "Access administrator", "", shared.CoreScopes())
	}
	if err != nil {
		return session.Result{}, err
	}
	_, err = s.Catalog.CreateProfile(ctx, catalog.Profile{Code: AdminCode, Name: "Access administrator", Roles: []string{AdminCode}})
	if err != nil && !errors.Is(err, shared.ErrDuplicateCode) {
		return session.Result{}, err
	}

	root, err := s.findOrCreateRoot(ctx, in)
	if err != nil {
		return session.Result{}, err
	}
	admin, err := s.findOrCreateUser(ctx, in.Email)
	if err != nil {
		return session.Result{}, err
	}

	active, err := s.Ledger.ListActive(ctx, admin.ID)
	if err != nil {
		return session.Result{}, err
	}
	for _, a := range active {
		if a.ProfileCode == AdminCode && a.StructureID == root.ID {
			return s.Session.SetDefault(ctx, admin.ID, a.ID)
		}
	}

	res, err := s.Session.AddProfile(ctx, associations.CreateInput{
		UserID:      admin.ID,
		ProfileCode: AdminCode,
		StructureID: root.ID,
		TypeCode:    "BOOTSTRAP",
	})
	if err != nil {
		return session.Result{}, err
	}
	if res.Credentials != nil {
		return res, nil
	}
	return s.Session.SetDefault(ctx, admin.ID, res.Association.ID)
}

func (s *Services) findOrCreateRoot(ctx context.Context, in BootstrapInput) (structures.Structure, error) {
	all, err := s.Structures.List(ctx)
	if err != nil {
		return structures.Structure{}, err
	}
	for _, st := range all {
		if st.ParentID == nil && st.Name == in.StructureName {
			return st, nil
		}
	}
	return s.Structures.Create(ctx, structures.Structure{Name: in.StructureName, TypeCode: in.StructureType}, nil)
}

func (s *Services) findOrCreateUser(ctx context.Context, email string) (users.User, error) {
	u, err := s.Users.Create(ctx, users.User{Email: email, FirstName: "Admin"})
	if !errors.Is(err, shared.ErrDuplicateCode) {
		return u, err
	}
	all, err := s.Users.List(ctx)
	if err != nil {
		return users.User{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range all {
		if u.Email == email {
			return u, nil
		}
	}
	return users.User{}, fmt.Errorf("bootstrap: user %s: %w", email, shared.ErrNotFound)
}
