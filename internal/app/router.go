package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-access/internal/associations"
	"github.com/odyssey-erp/odyssey-access/internal/catalog"
	"github.com/odyssey-erp/odyssey-access/internal/observability"
	"github.com/odyssey-erp/odyssey-access/internal/rbac"
	"github.com/odyssey-erp/odyssey-access/internal/session"
	"github.com/odyssey-erp/odyssey-access/internal/structures"
	"github.com/odyssey-erp/odyssey-access/internal/users"
	"github.com/odyssey-erp/odyssey-access/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	Authenticate        func(http.Handler) http.Handler
	CatalogHandler      *catalog.Handler
	StructuresHandler   *structures.Handler
	RBACHandler         *rbac.Handler
	UsersHandler        *users.Handler
	AssociationsHandler *associations.Handler
	SessionHandler      *session.Handler
	JobHandler          *jobs.Handler
	Metrics             *observability.Metrics
}

// NewRouter constructs the chi.Router with access API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:       params.Logger,
		Config:       params.Config,
		Authenticate: params.Authenticate,
		Metrics:      params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.CatalogHandler != nil {
		r.Route("/catalog", params.CatalogHandler.MountRoutes)
	}
	if params.RBACHandler != nil {
		r.Route("/rbac", params.RBACHandler.MountRoutes)
	}
	if params.StructuresHandler != nil {
		r.Route("/structures", params.StructuresHandler.MountRoutes)
	}
	r.Route("/users", func(r chi.Router) {
		if params.UsersHandler != nil {
			params.UsersHandler.MountRoutes(r)
		}
		r.Route("/{id}/associations", func(r chi.Router) {
			if params.AssociationsHandler != nil {
				params.AssociationsHandler.MountUserRoutes(r)
			}
			if params.SessionHandler != nil {
				params.SessionHandler.MountUserRoutes(r)
			}
		})
	})
	if params.AssociationsHandler != nil {
		r.Route("/associations", params.AssociationsHandler.MountRoutes)
	}
	if params.SessionHandler != nil {
		r.Route("/session", params.SessionHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
