package session

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-access/internal/associations"
	"github.com/odyssey-erp/odyssey-access/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
	"github.com/odyssey-erp/odyssey-access/internal/users"
)

// Handler exposes session issuance endpoints.
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

// MountUserRoutes registers administrative routes under /users/{id}/associations.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PrivAssociationsEdit))
		r.Post("/", h.addProfile)
		r.Post("/{aid}/set-default", h.setDefaultForUser)
	})
}

// MountRoutes registers self-service routes under /session.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/refresh", h.refresh)
	r.Get("/current", h.current)
	r.Post("/default", h.setOwnDefault)
}

type addProfileRequest struct {
	ProfileCode string     `json:"profileCode" validate:"required,max=64"`
	StructureID int64      `json:"structureId" validate:"required,gt=0"`
	TypeCode    string     `json:"typeCode" validate:"max=64"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
}

type setDefaultRequest struct {
	AssociationID string `json:"associationId" validate:"required"`
}

type refreshRequest struct {
	UserID       int64  `json:"userId" validate:"required,gt=0"`
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (h *Handler) addProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := users.UserIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req addProfileRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := associations.CreateInput{
		UserID:      userID,
		ProfileCode: req.ProfileCode,
		StructureID: req.StructureID,
		TypeCode:    req.TypeCode,
		EndDate:     req.EndDate,
	}
	if req.StartDate != nil {
		in.StartDate = *req.StartDate
	}
	res, err := h.service.AddProfile(r.Context(), in)
	if err != nil {
		h.logger.Warn("add profile failed", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) setDefaultForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := users.UserIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.setDefault(w, r, userID, chi.URLParam(r, "aid"))
}

func (h *Handler) setOwnDefault(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, shared.ErrInvalidToken)
		return
	}
	var req setDefaultRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.setDefault(w, r, principal.UserID, req.AssociationID)
}

func (h *Handler) setDefault(w http.ResponseWriter, r *http.Request, userID int64, associationID string) {
	res, err := h.service.SetDefault(r.Context(), userID, associationID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, shared.ErrInvalidToken)
		return
	}
	res, err := h.service.Current(r.Context(), principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	creds, err := h.service.Refresh(r.Context(), req.UserID, req.RefreshToken)
	if err != nil {
		h.logger.Info("session refresh rejected", slog.Int64("user_id", req.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, creds)
}
