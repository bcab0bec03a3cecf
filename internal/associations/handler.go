package associations

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-access/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
	"github.com/odyssey-erp/odyssey-access/internal/users"
)

// Handler exposes ledger reads and revocation.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   httpx.Guard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard httpx.Guard) *Handler {
	if guard == nil {
		guard = httpx.OpenGuard{}
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountUserRoutes registers routes nested under /users/{id}/associations.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.With(h.guard.RequireAny(shared.PrivUsersView, shared.PrivAssociationsEdit)).Get("/", h.listForUser)
}

// MountRoutes registers routes under /associations.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequireAny(shared.PrivUsersView, shared.PrivAssociationsEdit)).Get("/{aid}", h.getAssociation)
	r.With(h.guard.RequireAny(shared.PrivAssociationsEdit)).Post("/{aid}/revoke", h.revoke)
}

func (h *Handler) listForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := users.UserIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var list []Association
	if r.URL.Query().Get("active") == "true" {
		list, err = h.service.ListActive(r.Context(), userID)
	} else {
		list, err = h.service.ListByUser(r.Context(), userID)
	}
	if err != nil {
		h.logger.Error("list associations failed", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) getAssociation(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Get(r.Context(), chi.URLParam(r, "aid"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Revoke(r.Context(), chi.URLParam(r, "aid"))
	if err != nil {
		h.logger.Warn("revoke association failed", slog.String("id", chi.URLParam(r, "aid")), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}
