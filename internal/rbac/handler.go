package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-access/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// Handler exposes privilege resolution over JSON.
type Handler struct {
	logger    *slog.Logger
	resolver  *Resolver
	guard     httpx.Guard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver, guard httpx.Guard) *Handler {
	if guard == nil {
		guard = httpx.OpenGuard{}
	}
	return &Handler{logger: logger, resolver: resolver, guard: guard, validator: validator.New()}
}

// MountRoutes registers resolution routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PrivCatalogView, shared.PrivCatalogEdit))
		r.Get("/profiles/{code}", h.resolveProfile)
		r.Post("/roles", h.resolveRoles)
	})
}

type resolveRolesRequest struct {
	Roles []string `json:"roles" validate:"dive,required,max=64"`
}

func (h *Handler) resolveProfile(w http.ResponseWriter, r *http.Request) {
	privs, err := h.resolver.ResolveForProfile(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.logger.Warn("resolve profile", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, privs)
}

func (h *Handler) resolveRoles(w http.ResponseWriter, r *http.Request) {
	var req resolveRolesRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.resolver.ResolveForRoles(r.Context(), req.Roles))
}
