package structures

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

// Handler exposes the structure tree over JSON.
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

// MountRoutes registers structure routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PrivStructuresView, shared.PrivStructuresEdit))
		r.Get("/", h.list)
		r.Get("/possible-parents", h.possibleParents)
		r.Get("/{id}", h.get)
		r.Get("/{id}/descendants", h.descendants)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PrivStructuresEdit))
		r.Post("/", h.create)
		r.Put("/{id}/anchor", h.changeAnchor)
	})
}

type createRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Acronym  string `json:"acronym" validate:"max=32"`
	TypeCode string `json:"typeCode" validate:"required,max=64"`
	ParentID *int64 `json:"parentId" validate:"omitempty,gt=0"`
	Tel      string `json:"tel" validate:"max=32"`
	Address  string `json:"address" validate:"max=512"`
	Geo      string `json:"geo" validate:"max=128"`
}

type anchorRequest struct {
	ParentID *int64  `json:"parentId" validate:"omitempty,gt=0"`
	Name     *string `json:"name" validate:"omitempty,max=255"`
	Acronym  *string `json:"acronym" validate:"omitempty,max=32"`
	Tel      *string `json:"tel" validate:"omitempty,max=32"`
	Address  *string `json:"address" validate:"omitempty,max=512"`
	Geo      *string `json:"geo" validate:"omitempty,max=128"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list structures", err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	s, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get structure", err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) possibleParents(w http.ResponseWriter, r *http.Request) {
	var id int64
	if raw := r.URL.Query().Get("id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("structures: bad id %q: %w", raw, shared.ErrValidation))
			return
		}
		id = parsed
	}
	items, err := h.service.PossibleParents(r.Context(), r.URL.Query().Get("type"), id)
	if err != nil {
		h.fail(w, "possible parents", err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) descendants(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ids, err := h.service.DescendantsOf(r.Context(), id)
	if err != nil {
		h.fail(w, "descendants", err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	httpx.JSON(w, http.StatusOK, ids)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	s, err := h.service.Create(r.Context(), Structure{
		Name:     req.Name,
		Acronym:  req.Acronym,
		TypeCode: req.TypeCode,
		Tel:      req.Tel,
		Address:  req.Address,
		Geo:      req.Geo,
	}, req.ParentID)
	if err != nil {
		h.fail(w, "create structure", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, s)
}

func (h *Handler) changeAnchor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req anchorRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	s, err := h.service.ChangeAnchor(r.Context(), id, req.ParentID, UpdateFields{
		Name:    req.Name,
		Acronym: req.Acronym,
		Tel:     req.Tel,
		Address: req.Address,
		Geo:     req.Geo,
	})
	if err != nil {
		h.fail(w, "change anchor", err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("structures: bad id %q: %w", raw, shared.ErrValidation)
	}
	return id, nil
}
