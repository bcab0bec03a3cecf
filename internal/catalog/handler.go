package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-access/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// Handler exposes catalog administration over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     httpx.Guard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard httpx.Guard) *Handler {
	if guard == nil {
		guard = httpx.OpenGuard{}
	}
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PrivCatalogView, shared.PrivCatalogEdit))
		r.Get("/privileges", h.listPrivileges)
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{code}", h.getRole)
		r.Get("/profiles", h.listProfiles)
		r.Get("/profiles/{code}", h.getProfile)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PrivCatalogEdit))
		r.Post("/privileges", h.createPrivilege)
		r.Put("/privileges/{code}", h.updatePrivilege)
		r.Post("/roles", h.createRole)
		r.Put("/roles/{code}", h.updateRole)
		r.Post("/profiles", h.createProfile)
		r.Put("/profiles/{code}", h.updateProfile)
	})
}

type privilegeRequest struct {
	Code        string `json:"code" validate:"required,max=64"`
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=1024"`
	TypeCode    string `json:"typeCode" validate:"max=64"`
}

type updatePrivilegeRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=1024"`
}

type bundleRequest struct {
	Code        string   `json:"code" validate:"required,max=64"`
	Name        string   `json:"name" validate:"required,max=255"`
	Description string   `json:"description" validate:"max=1024"`
	Children    []string `json:"children" validate:"dive,required,max=64"`
}

type updateBundleRequest struct {
	Name        string   `json:"name" validate:"required,max=255"`
	Description string   `json:"description" validate:"max=1024"`
	Children    []string `json:"children" validate:"dive,required,max=64"`
}

func (h *Handler) listPrivileges(w http.ResponseWriter, r *http.Request) {
	privs, err := h.service.ListPrivileges(r.Context(), PrivilegeFilter{
		TypeCode: r.URL.Query().Get("type"),
		Search:   r.URL.Query().Get("q"),
	})
	if err != nil {
		h.fail(w, "list privileges", err)
		return
	}
	httpx.JSON(w, http.StatusOK, privs)
}

func (h *Handler) createPrivilege(w http.ResponseWriter, r *http.Request) {
	var req privilegeRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.CreatePrivilege(r.Context(), Privilege{Code: req.Code, Name: req.Name, Description: req.Description, TypeCode: req.TypeCode})
	if err != nil {
		h.fail(w, "create privilege", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) updatePrivilege(w http.ResponseWriter, r *http.Request) {
	var req updatePrivilegeRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.UpdatePrivilege(r.Context(), chi.URLParam(r, "code"), req.Name, req.Description)
	if err != nil {
		h.fail(w, "update privilege", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRole(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req bundleRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), Role{Code: req.Code, Name: req.Name, Description: req.Description, Privileges: req.Children})
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var req updateBundleRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.UpdateRole(r.Context(), chi.URLParam(r, "code"), req.Name, req.Description, req.Children)
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.service.ListProfiles(r.Context())
	if err != nil {
		h.fail(w, "list profiles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, profiles)
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProfile(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, "get profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) createProfile(w http.ResponseWriter, r *http.Request) {
	var req bundleRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.CreateProfile(r.Context(), Profile{Code: req.Code, Name: req.Name, Description: req.Description, Roles: req.Children})
	if err != nil {
		h.fail(w, "create profile", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateBundleRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.UpdateProfile(r.Context(), chi.URLParam(r, "code"), req.Name, req.Description, req.Children)
	if err != nil {
		h.fail(w, "update profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
