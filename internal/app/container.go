package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-access/internal/associations"
	"github.com/odyssey-erp/odyssey-access/internal/catalog"
	"github.com/odyssey-erp/odyssey-access/internal/events"
	"github.com/odyssey-erp/odyssey-access/internal/observability"
	"github.com/odyssey-erp/odyssey-access/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-access/internal/rbac"
	"github.com/odyssey-erp/odyssey-access/internal/session"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
	"github.com/odyssey-erp/odyssey-access/internal/structures"
	"github.com/odyssey-erp/odyssey-access/internal/tokens"
	"github.com/odyssey-erp/odyssey-access/internal/users"
	"github.com/odyssey-erp/odyssey-access/jobs"
)

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Stores bundles the repositories for one backend.
type Stores struct {
	Catalog      catalog.RepositoryPort
	Structures   structures.RepositoryPort
	Users        users.RepositoryPort
	Associations associations.RepositoryPort
	Audit        AuditRecorder
}

// MemoryStores returns in-process repositories.
func MemoryStores() Stores {
	return Stores{
		Catalog:      catalog.NewMemoryRepository(),
		Structures:   structures.NewMemoryRepository(),
		Users:        users.NewMemoryRepository(),
		Associations: associations.NewMemoryRepository(),
		Audit:        shared.NewMemoryAudit(),
	}
}

// PostgresStores returns repositories backed by pool.
func PostgresStores(pool *pgxpool.Pool) Stores {
	return Stores{
		Catalog:      catalog.NewRepository(pool),
		Structures:   structures.NewRepository(pool),
		Users:        users.NewRepository(pool),
		Associations: associations.NewRepository(pool),
		Audit:        shared.NewAuditLogger(pool),
	}
}

// Deps collects what BuildServices wires together.
type Deps struct {
	Config    *Config
	Logger    *slog.Logger
	Stores    Stores
	Locker    shared.Locker
	Publisher events.Publisher
	Issuer    session.TokenIssuer
	Verifier  tokens.Verifier
	Metrics   *observability.Metrics
}

// Services holds the domain services of one process.
type Services struct {
	Catalog    *catalog.Service
	Structures *structures.Service
	Resolver   *rbac.Resolver
	Users      *users.Service
	Ledger     *associations.Service
	Session    *session.Service
	verifier   tokens.Verifier
	logger     *slog.Logger
}

// BuildServices wires the domain services.
func BuildServices(d Deps) *Services {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	locker := d.Locker
	if locker == nil {
		locker = shared.NewLocalLocker()
	}
	var rules structures.Rules
	if d.Config != nil {
		rules = d.Config.StructureParentRules
	}
	var metrics session.Metrics
	if d.Metrics != nil {
		metrics = d.Metrics
	}

	cat := catalog.NewService(d.Stores.Catalog, logger.With("module", "catalog"))
	resolver := rbac.NewResolver(cat)
	userSvc := users.NewService(d.Stores.Users, d.Stores.Audit, logger.With("module", "users")).WithLocker(locker)
	ledger := associations.NewService(d.Stores.Associations, locker, d.Publisher, d.Stores.Audit, logger.With("module", "associations"))
	return &Services{
		Catalog:    cat,
		Structures: structures.NewService(d.Stores.Structures, rules, locker, logger.With("module", "structures")),
		Resolver:   resolver,
		Users:      userSvc,
		Ledger:     ledger,
		Session:    session.NewService(ledger, resolver, userSvc, d.Issuer, metrics, logger.With("module", "session")),
		verifier:   d.Verifier,
		logger:     logger,
	}
}

// Router builds the HTTP API for the services.
func (s *Services) Router(cfg *Config, metrics *observability.Metrics, jobHandler *jobs.Handler) http.Handler {
	guard := s.Guard(cfg)
	var authenticate func(http.Handler) http.Handler
	if s.verifier != nil {
		authenticate = s.middleware().Authenticate
	}
	return NewRouter(RouterParams{
		Logger:              s.logger,
		Config:              cfg,
		Authenticate:        authenticate,
		CatalogHandler:      catalog.NewHandler(s.logger, s.Catalog, guard),
		StructuresHandler:   structures.NewHandler(s.logger, s.Structures, guard),
		RBACHandler:         rbac.NewHandler(s.logger, s.Resolver, guard),
		UsersHandler:        users.NewHandler(s.logger, s.Users, guard),
		AssociationsHandler: associations.NewHandler(s.logger, s.Ledger, guard),
		SessionHandler:      session.NewHandler(s.logger, s.Session, guard),
		JobHandler:          jobHandler,
		Metrics:             metrics,
	})
}

// Guard returns the privilege checks for route groups. With AUTH_ENFORCE off
// every route is open.
func (s *Services) Guard(cfg *Config) httpx.Guard {
	if cfg != nil && !cfg.AuthEnforce {
		return httpx.OpenGuard{}
	}
	return s.middleware()
}

func (s *Services) middleware() rbac.Middleware {
	return rbac.Middleware{Authenticator: s.verifier, Logger: s.logger}
}
