package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-access/internal/associations"
	jobmetrics "github.com/odyssey-erp/odyssey-access/internal/jobs"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

func TestExpireJobSweepsLedger(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	ledger := associations.NewService(associations.NewMemoryRepository(), shared.NewLocalLocker(), nil, nil, nil).
		WithClock(func() time.Time { return start })
	a, err := ledger.Create(ctx, associations.CreateInput{UserID: 1, ProfileCode: "X", StructureID: 1, EndDate: &end})
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	job := NewExpireJob(ledger, nil, metrics)

	task, err := NewExpireTask(end.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, TaskAssociationsExpire, task.Type())
	require.NoError(t, job.Handle(ctx, task))

	got, err := ledger.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, associations.StatusInactive, got.Status)

	count, err := testutil.GatherAndCount(registry, "access_associations_expired_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

type failingExpirer struct{}

func (failingExpirer) ExpireDue(context.Context, time.Time) (int, error) {
	return 0, errors.New("db down")
}

func TestExpireJobReportsFailure(t *testing.T) {
	registry := prometheus.NewRegistry()
	job := NewExpireJob(failingExpirer{}, nil, jobmetrics.NewMetrics(registry))
	err := job.Handle(context.Background(), asynq.NewTask(TaskAssociationsExpire, nil))
	require.Error(t, err)

	failures, err := testutil.GatherAndCount(registry, "access_jobs_failures_total")
	require.NoError(t, err)
	require.Equal(t, 1, failures)
}

func TestExpireJobRejectsBadPayload(t *testing.T) {
	job := NewExpireJob(failingExpirer{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskAssociationsExpire, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestJobsHealth(t *testing.T) {
	h := NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3}}, nil)
	rr := httptest.NewRecorder()
	h.health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body queueStatus
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Equal(t, 3, body.Pending)

	rr = httptest.NewRecorder()
	NewHandler(nil, nil).health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestJobsHealthInspectorFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(stubInspector{err: errors.New("redis down")}, nil).health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestNewWorkerRejectsBadCron(t *testing.T) {
	task, err := NewExpireTask(time.Time{})
	require.NoError(t, err)
	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Cron:      []CronRegistration{{Spec: "not a cron", Task: task}},
	})
	require.Error(t, err)
}

type recordingEnqueuer struct {
	at  time.Time
	err error
}

func (e *recordingEnqueuer) EnqueueExpire(_ context.Context, at time.Time) (*asynq.TaskInfo, error) {
	e.at = at
	if e.err != nil {
		return nil, e.err
	}
	return &asynq.TaskInfo{ID: "t-1", Type: TaskAssociationsExpire, Queue: QueueDefault}, nil
}

func TestTriggerExpireRoute(t *testing.T) {
	enq := &recordingEnqueuer{}
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).WithEnqueuer(enq, nil).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/expire?at=2026-02-01T00:00:00Z", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.True(t, enq.at.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)))

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/expire?at=yesterday", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	enq.err = errors.New("redis down")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/expire", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestTriggerExpireRouteHiddenWithoutEnqueuer(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/expire", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
