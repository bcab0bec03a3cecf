package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-access/internal/app"
	"github.com/odyssey-erp/odyssey-access/internal/associations"
	"github.com/odyssey-erp/odyssey-access/internal/session"
	"github.com/odyssey-erp/odyssey-access/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error { return nil }

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func (s stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return []*asynq.TaskInfo{{ID: "s1"}}, nil
}

func (s stubInspector) Close() error { return nil }

func TestTriggerExpire(t *testing.T) {
	enq := &stubEnqueuer{}
	c := NewJobsCLIWith(enq, stubInspector{})
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	info, err := c.Trigger(context.Background(), "expire", at)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskAssociationsExpire, info.Type)
	require.Len(t, enq.tasks, 1)

	var payload jobs.ExpirePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.True(t, payload.At.Equal(at))

	_, err = c.Trigger(context.Background(), "unknown", at)
	require.Error(t, err)
}

func TestInspectQueue(t *testing.T) {
	c := NewJobsCLIWith(&stubEnqueuer{}, stubInspector{info: &asynq.QueueInfo{Pending: 2, Scheduled: 1, Retry: 3}})
	stats, err := c.InspectQueue(context.Background())
	require.NoError(t, err)
	require.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 2, Scheduled: 1, Retry: 3}, stats)

	c = NewJobsCLIWith(&stubEnqueuer{}, stubInspector{err: errors.New("redis down")})
	_, err = c.InspectQueue(context.Background())
	require.Error(t, err)

	scheduled, err := NewJobsCLIWith(nil, stubInspector{}).ListScheduled(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
}

type stubBootstrapper struct {
	got app.BootstrapInput
	err error
}

func (s *stubBootstrapper) Bootstrap(_ context.Context, in app.BootstrapInput) (session.Result, error) {
	s.got = in
	if s.err != nil {
		return session.Result{}, s.err
	}
	return session.Result{
		Association: associations.Association{ID: "a1", UserID: 1, StructureID: 7},
		Credentials: &session.Credentials{AccessToken: "acc", RefreshToken: "ref"},
	}, nil
}

func TestBootstrapCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	b := &stubBootstrapper{}
	code := BootstrapCommand(context.Background(), b, BootstrapOptions{Email: "root@example.org", Stdout: &stdout, Stderr: &stderr})
	require.Equal(t, 0, code, stderr.String())
	require.Equal(t, "root@example.org", b.got.Email)

	var out bootstrapOutput
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	require.Equal(t, "a1", out.AssociationID)
	require.Equal(t, "acc", out.Credentials.AccessToken)
}

func TestBootstrapCommandFailures(t *testing.T) {
	var stderr bytes.Buffer
	require.Equal(t, 1, BootstrapCommand(context.Background(), &stubBootstrapper{}, BootstrapOptions{Stderr: &stderr}))
	require.Contains(t, stderr.String(), "--email")

	stderr.Reset()
	code := BootstrapCommand(context.Background(), &stubBootstrapper{err: errors.New("boom")}, BootstrapOptions{Email: "a@b.c", Stderr: &stderr, Stdout: &bytes.Buffer{}})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "boom")
}
