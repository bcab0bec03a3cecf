package jobs

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-access/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// QueueInspector reports queue depth.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// ExpireEnqueuer queues an expiry sweep.
type ExpireEnqueuer interface {
	EnqueueExpire(ctx context.Context, at time.Time) (*asynq.TaskInfo, error)
}

// Handler exposes queue health over HTTP.
type Handler struct {
	inspector QueueInspector
	enqueuer  ExpireEnqueuer
	guard     httpx.Guard
	logger    *slog.Logger
}

// NewHandler builds a Handler. A nil inspector reports an empty queue.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// WithEnqueuer enables POST /jobs/expire for callers holding the associations privilege.
func (h *Handler) WithEnqueuer(e ExpireEnqueuer, guard httpx.Guard) *Handler {
	if guard == nil {
		guard = httpx.OpenGuard{}
	}
	h.enqueuer = e
	h.guard = guard
	return h
}

// MountRoutes registers routes under /jobs.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	if h.enqueuer != nil {
		r.With(h.guard.RequireAny(shared.PrivAssociationsEdit)).Post("/expire", h.triggerExpire)
	}
}

type enqueued struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Queue string `json:"queue"`
}

func (h *Handler) triggerExpire(w http.ResponseWriter, r *http.Request) {
	var at time.Time
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", "at must be RFC3339")
			return
		}
		at = parsed
	}
	info, err := h.enqueuer.EnqueueExpire(r.Context(), at)
	if err != nil {
		h.logger.Error("enqueue expire", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue unavailable", "expiry sweep could not be queued")
		return
	}
	h.logger.Info("expire sweep queued", slog.String("task_id", info.ID), slog.Int64("actor_id", shared.ActorID(r.Context())))
	httpx.JSON(w, http.StatusAccepted, enqueued{ID: info.ID, Type: info.Type, Queue: info.Queue})
}

type queueStatus struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Paused    bool   `json:"paused"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status := queueStatus{Queue: QueueDefault}
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, status)
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue unavailable", "queue state could not be read")
		return
	}
	if info != nil {
		status = queueStatus{
			Queue:     info.Queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Paused:    info.Paused,
		}
	}
	httpx.JSON(w, http.StatusOK, status)
}
