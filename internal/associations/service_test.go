package associations

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-access/internal/events"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestService(t *testing.T) (*Service, *MemoryRepository, *recordingPublisher) {
	t.Helper()
	repo := NewMemoryRepository()
	pub := &recordingPublisher{}
	svc := NewService(repo, shared.NewLocalLocker(), pub, nil, nil).WithClock(func() time.Time { return fixedNow })
	return svc, repo, pub
}

func create(t *testing.T, svc *Service, userID int64, profile string) Association {
	t.Helper()
	a, err := svc.Create(context.Background(), CreateInput{
		UserID:      userID,
		ProfileCode: profile,
		StructureID: 10,
		TypeCode:    "primary",
	})
	require.NoError(t, err)
	return a
}

func currentCount(t *testing.T, repo *MemoryRepository, userID int64) int {
	t.Helper()
	list, err := repo.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	n := 0
	for _, a := range list {
		if a.Status == StatusCurrent {
			n++
		}
	}
	return n
}

func TestCreateFirstIsCurrent(t *testing.T) {
	svc, _, pub := newTestService(t)

	a1 := create(t, svc, 1, "x")
	require.Equal(t, StatusCurrent, a1.Status)
	require.Equal(t, "X", a1.ProfileCode)
	require.Equal(t, "PRIMARY", a1.TypeCode)
	require.Equal(t, fixedNow, a1.StartDate)

	a2 := create(t, svc, 1, "y")
	require.Equal(t, StatusPending, a2.Status)

	other := create(t, svc, 2, "x")
	require.Equal(t, StatusCurrent, other.Status)

	require.Equal(t, []string{events.AssociationCreated, events.AssociationCreated, events.AssociationCreated}, pub.types())
}

func TestCreateRejectsInvalidPeriod(t *testing.T) {
	svc, repo, _ := newTestService(t)
	end := fixedNow.Add(-time.Hour)
	_, err := svc.Create(context.Background(), CreateInput{
		UserID: 1, ProfileCode: "X", StructureID: 1, StartDate: fixedNow, EndDate: &end,
	})
	require.ErrorIs(t, err, shared.ErrInvalidPeriod)

	list, err := repo.ListByUser(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = svc.Create(context.Background(), CreateInput{UserID: 1, StructureID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateHookFailureRollsBack(t *testing.T) {
	svc, repo, pub := newTestService(t)
	boom := errors.New("issuer down")
	_, err := svc.Create(context.Background(), CreateInput{
		UserID: 5, ProfileCode: "X", StructureID: 1,
		OnPromote: func(context.Context, Association) error { return boom },
	})
	require.ErrorIs(t, err, boom)

	list, err := repo.ListByUser(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, list)
	require.Empty(t, pub.types())
}

func TestCreatePendingSkipsHook(t *testing.T) {
	svc, _, _ := newTestService(t)
	create(t, svc, 1, "X")
	called := false
	a, err := svc.Create(context.Background(), CreateInput{
		UserID: 1, ProfileCode: "Y", StructureID: 1,
		OnPromote: func(context.Context, Association) error { called = true; return nil },
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, a.Status)
	require.False(t, called)
}

func TestRevoke(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	a1 := create(t, svc, 1, "X")
	a2 := create(t, svc, 1, "Y")

	revoked, err := svc.Revoke(ctx, a1.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInactive, revoked.Status)

	// no auto-promotion
	require.Zero(t, currentCount(t, repo, 1))
	got, err := svc.Get(ctx, a2.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)

	_, err = svc.Revoke(ctx, a1.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = svc.Revoke(ctx, "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.SetDefault(ctx, 1, a1.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestSwitchDefaultScenario(t *testing.T) {
	svc, _, pub := newTestService(t)
	ctx := context.Background()
	a1 := create(t, svc, 1, "X")
	a2 := create(t, svc, 1, "Y")

	var hooked Association
	res, err := svc.SwitchDefault(ctx, 1, a2.ID, func(_ context.Context, promoted Association) error {
		hooked = promoted
		return nil
	})
	require.NoError(t, err)
	require.True(t, res.Switched)
	require.Equal(t, a2.ID, res.Current.ID)
	require.Equal(t, StatusCurrent, res.Current.Status)
	require.NotNil(t, res.Demoted)
	require.Equal(t, a1.ID, res.Demoted.ID)
	require.Equal(t, "Y", hooked.ProfileCode)

	got1, err := svc.Get(ctx, a1.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got1.Status)
	got2, err := svc.Get(ctx, a2.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCurrent, got2.Status)

	require.Contains(t, pub.types(), events.AssociationDefaultSwitched)
}

func TestSwitchDefaultAlreadyCurrentIsNoop(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	a1 := create(t, svc, 1, "X")
	before, err := repo.ListByUser(ctx, 1)
	require.NoError(t, err)

	hookCalled := false
	res, err := svc.SwitchDefault(ctx, 1, a1.ID, func(context.Context, Association) error {
		hookCalled = true
		return nil
	})
	require.ErrorIs(t, err, shared.ErrAlreadyCurrent)
	require.Equal(t, a1.ID, res.Current.ID)
	require.False(t, res.Switched)
	require.False(t, hookCalled)

	after, err := repo.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestSwitchDefaultWrongUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	a := create(t, svc, 1, "X")
	_, err := svc.SetDefault(context.Background(), 2, a.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSwitchDefaultHookFailureRollsBack(t *testing.T) {
	svc, repo, pub := newTestService(t)
	ctx := context.Background()
	a1 := create(t, svc, 1, "X")
	a2 := create(t, svc, 1, "Y")
	published := len(pub.types())

	boom := errors.New("issuer down")
	_, err := svc.SwitchDefault(ctx, 1, a2.ID, func(context.Context, Association) error { return boom })
	require.ErrorIs(t, err, boom)

	got1, err := repo.Get(ctx, a1.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCurrent, got1.Status)
	got2, err := repo.Get(ctx, a2.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got2.Status)
	require.Len(t, pub.types(), published)
}

func TestSwitchDefaultRejectsExpired(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	create(t, svc, 1, "X")
	end := fixedNow.Add(-time.Minute)
	expired, err := svc.Create(ctx, CreateInput{
		UserID: 1, ProfileCode: "Y", StructureID: 1, StartDate: fixedNow.Add(-time.Hour), EndDate: &end,
	})
	require.NoError(t, err)

	_, err = svc.SetDefault(ctx, 1, expired.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestListActive(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	a1 := create(t, svc, 1, "X")
	a2 := create(t, svc, 1, "Y")
	revoked := create(t, svc, 1, "Z")
	_, err := svc.Revoke(ctx, revoked.ID)
	require.NoError(t, err)

	past := fixedNow.Add(-time.Minute)
	_, err = svc.Create(ctx, CreateInput{UserID: 1, ProfileCode: "OLD", StructureID: 1, StartDate: fixedNow.Add(-time.Hour), EndDate: &past})
	require.NoError(t, err)
	future := fixedNow.Add(24 * time.Hour)
	a5, err := svc.Create(ctx, CreateInput{UserID: 1, ProfileCode: "NEW", StructureID: 1, StartDate: fixedNow.Add(time.Hour), EndDate: &future})
	require.NoError(t, err)

	active, err := svc.ListActive(ctx, 1)
	require.NoError(t, err)
	ids := make([]string, 0, len(active))
	for _, a := range active {
		ids = append(ids, a.ID)
	}
	require.ElementsMatch(t, []string{a1.ID, a2.ID, a5.ID}, ids)
	require.Equal(t, a5.ID, ids[len(ids)-1])

	all, err := svc.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 5)
}

func TestCurrent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Current(ctx, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)

	a1 := create(t, svc, 1, "X")
	cur, err := svc.Current(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, a1.ID, cur.ID)
}

func TestExpireDue(t *testing.T) {
	svc, repo, pub := newTestService(t)
	ctx := context.Background()
	end := fixedNow.Add(time.Hour)
	a1, err := svc.Create(ctx, CreateInput{UserID: 1, ProfileCode: "X", StructureID: 1, EndDate: &end})
	require.NoError(t, err)
	a2 := create(t, svc, 1, "Y")
	b1, err := svc.Create(ctx, CreateInput{UserID: 2, ProfileCode: "X", StructureID: 1, EndDate: &end})
	require.NoError(t, err)

	n, err := svc.ExpireDue(ctx, fixedNow)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = svc.ExpireDue(ctx, end)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	for _, id := range []string{a1.ID, b1.ID} {
		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, StatusInactive, got.Status)
	}
	got, err := repo.Get(ctx, a2.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Contains(t, pub.types(), events.AssociationExpired)

	n, err = svc.ExpireDue(ctx, end.Add(time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestConcurrentSwitchLeavesOneCurrent(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	create(t, svc, 1, "BASE")

	const n = 16
	targets := make(map[string]bool, n)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		a := create(t, svc, 1, "P")
		targets[a.ID] = true
		ids = append(ids, a.ID)
	}

	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, err := svc.SetDefault(ctx, 1, id)
			return err
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, 1, currentCount(t, repo, 1))
	cur, err := svc.Current(ctx, 1)
	require.NoError(t, err)
	require.True(t, targets[cur.ID])

	active, err := svc.ListActive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, active, n+1)
}

func TestRandomOperationsKeepAtMostOneCurrent(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	var ids []string
	for step := 0; step < 300; step++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(ids) == 0:
			a := create(t, svc, 1, "P")
			ids = append(ids, a.ID)
		case op == 1:
			_, err := svc.Revoke(ctx, ids[rng.Intn(len(ids))])
			if err != nil {
				require.ErrorIs(t, err, shared.ErrInvalidTransition)
			}
		default:
			_, err := svc.SetDefault(ctx, 1, ids[rng.Intn(len(ids))])
			if err != nil && !errors.Is(err, shared.ErrAlreadyCurrent) {
				require.ErrorIs(t, err, shared.ErrInvalidTransition)
			}
		}
		require.LessOrEqual(t, currentCount(t, repo, 1), 1)
	}
}

func TestMemoryRepositoryRejectsSecondCurrent(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	err := repo.WithinUser(ctx, 1, func(ctx context.Context, tx TxRepository) error {
		require.NoError(t, tx.Insert(ctx, Association{ID: "a", UserID: 1, Status: StatusCurrent}))
		return tx.Insert(ctx, Association{ID: "b", UserID: 1, Status: StatusCurrent})
	})
	require.ErrorIs(t, err, shared.ErrDuplicateCode)

	list, err := repo.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, list)
}
