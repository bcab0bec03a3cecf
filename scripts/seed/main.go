package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/odyssey-erp/odyssey-access/internal/app"
	"github.com/odyssey-erp/odyssey-access/internal/associations"
	"github.com/odyssey-erp/odyssey-access/internal/catalog"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
	"github.com/odyssey-erp/odyssey-access/internal/structures"
	"github.com/odyssey-erp/odyssey-access/internal/users"
)

type bundle struct {
	code     string
	name     string
	children []string
}

var (
	demoPrivileges = []string{"HR.VIEW", "HR.EDIT", "FINANCE.VIEW", "FINANCE.APPROVE", "REPORTS.VIEW"}
	demoRoles      = []bundle{
		{"HR_CLERK", "HR clerk", []string{"HR.VIEW", "HR.EDIT"}},
		{"FIN_CONTROLLER", "Finance controller", []string{"FINANCE.VIEW", "FINANCE.APPROVE"}},
		{"READER", "Reader", []string{"HR.VIEW", "FINANCE.VIEW", "REPORTS.VIEW"}},
	}
	demoProfiles = []bundle{
		{"HR_AGENT", "HR agent", []string{"HR_CLERK", "READER"}},
		{"CONTROLLER", "Controller", []string{"FIN_CONTROLLER", "READER"}},
	}
)

func main() {
	_ = godotenv.Load()
	cfg, err := app.LoadConfig()
	if err != nil {
		fail("load config", err)
	}
	logger := app.NewLogger(cfg)
	ctx := context.Background()

	rt, err := app.OpenRuntime(ctx, cfg, logger)
	if err != nil {
		fail("open runtime", err)
	}
	defer rt.Close()
	if rt.Pool != nil {
		if err := rt.Migrate(ctx, cfg, logger); err != nil {
			fail("migrate", err)
		}
	}
	svcs := app.BuildServices(rt.Deps)

	fmt.Println("→ Seeding administrator...")
	boot, err := svcs.Bootstrap(ctx, app.BootstrapInput{Email: getenv("SEED_ADMIN_EMAIL", "admin@odyssey.local")})
	if err != nil {
		fail("bootstrap", err)
	}

	fmt.Println("→ Seeding catalog...")
	if err := seedCatalog(ctx, svcs.Catalog); err != nil {
		fail("seed catalog", err)
	}

	fmt.Println("→ Seeding structures...")
	dept, err := seedStructures(ctx, svcs.Structures, boot.Association.StructureID)
	if err != nil {
		fail("seed structures", err)
	}

	fmt.Println("→ Seeding users...")
	if err := seedUsers(ctx, svcs, dept); err != nil {
		fail("seed users", err)
	}
	fmt.Println("✓ Seed complete")
}

func seedCatalog(ctx context.Context, svc *catalog.Service) error {
	for _, code := range demoPrivileges {
		if _, err := svc.CreatePrivilege(ctx, catalog.Privilege{Code: code, Name: code, TypeCode: "DEMO"}); ignoreDuplicate(err) != nil {
			return err
		}
	}
	for _, r := range demoRoles {
		if _, err := svc.CreateRole(ctx, catalog.Role{Code: r.code, Name: r.name, Privileges: r.children}); ignoreDuplicate(err) != nil {
			return err
		}
	}
	for _, p := range demoProfiles {
		if _, err := svc.CreateProfile(ctx, catalog.Profile{Code: p.code, Name: p.name, Roles: p.children}); ignoreDuplicate(err) != nil {
			return err
		}
	}
	return nil
}

func seedStructures(ctx context.Context, svc *structures.Service, rootID int64) (structures.Structure, error) {
	existing, err := svc.List(ctx)
	if err != nil {
		return structures.Structure{}, err
	}
	for _, st := range existing {
		if st.Name == "Human Resources" {
			return st, nil
		}
	}
	return svc.Create(ctx, structures.Structure{Name: "Human Resources", Acronym: "HR", TypeCode: "DEPT"}, &rootID)
}

func seedUsers(ctx context.Context, svcs *app.Services, dept structures.Structure) error {
	seeds := []struct {
		email   string
		profile string
	}{
		{"hr.agent@odyssey.local", "HR_AGENT"},
		{"controller@odyssey.local", "CONTROLLER"},
	}
	for _, s := range seeds {
		u, err := svcs.Users.Create(ctx, users.User{Email: s.email})
		if errors.Is(err, shared.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return err
		}
		if _, err := svcs.Session.AddProfile(ctx, associations.CreateInput{
			UserID:      u.ID,
			ProfileCode: s.profile,
			StructureID: dept.ID,
			TypeCode:    "SEED",
		}); err != nil {
			return err
		}
	}
	return nil
}

func ignoreDuplicate(err error) error {
	if errors.Is(err, shared.ErrDuplicateCode) {
		return nil
	}
	return err
}

func fail(step string, err error) {
	slog.Default().Error(step, slog.Any("error", err))
	os.Exit(1)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
