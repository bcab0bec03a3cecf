package users

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-access/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// Handler manages user management endpoints.
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

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PrivUsersView, shared.PrivUsersEdit))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PrivUsersEdit))
		r.Post("/", h.createUser)
		r.Post("/{id}/block", h.setBlocked(true))
		r.Post("/{id}/unblock", h.setBlocked(false))
	})
}

type createUserRequest struct {
	Email           string `json:"email" validate:"required,email"`
	FirstName       string `json:"firstName" validate:"max=128"`
	LastName        string `json:"lastName" validate:"max=128"`
	Tel             string `json:"tel" validate:"max=32"`
	HomeStructureID *int64 `json:"homeStructureId" validate:"omitempty,gt=0"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := UserIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	u, err := h.service.Create(r.Context(), User{
		Email:           req.Email,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Tel:             req.Tel,
		HomeStructureID: req.HomeStructureID,
	})
	if err != nil {
		h.logger.Warn("create user failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, u)
}

func (h *Handler) setBlocked(blocked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := UserIDParam(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		u, err := h.service.SetBlocked(r.Context(), id, blocked)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, u)
	}
}

// UserIDParam parses the {id} route parameter.
func UserIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("users: bad id %q: %w", raw, shared.ErrValidation)
	}
	return id, nil
}
