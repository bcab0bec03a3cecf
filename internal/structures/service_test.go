package structures

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

func testRules() Rules {
	var r Rules
	_ = r.Decode("DEPT=ORG|DEPT;SERVICE=DEPT;ORG=ORG")
	return r
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewMemoryRepository(), testRules(), shared.NewLocalLocker(), nil)
}

func ptr(id int64) *int64 { return &id }

func mustCreate(t *testing.T, svc *Service, name, typ string, parent *int64) Structure {
	t.Helper()
	s, err := svc.Create(context.Background(), Structure{Name: name, TypeCode: typ}, parent)
	require.NoError(t, err)
	return s
}

func TestCreateChecksParentType(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	org := mustCreate(t, svc, "Org", "org", nil)
	dept := mustCreate(t, svc, "Dept", "DEPT", ptr(org.ID))
	require.Equal(t, org.ID, *dept.ParentID)

	_, err := svc.Create(ctx, Structure{Name: "Svc", TypeCode: "SERVICE"}, ptr(org.ID))
	require.ErrorIs(t, err, shared.ErrInvalidParentType)

	_, err = svc.Create(ctx, Structure{Name: "Svc", TypeCode: "SERVICE"}, ptr(999))
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Create(ctx, Structure{Name: "", TypeCode: "SERVICE"}, nil)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestChangeAnchorRejectsDescendantParent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	a := mustCreate(t, svc, "A", "ORG", nil)
	b := mustCreate(t, svc, "B", "DEPT", ptr(a.ID))

	_, err := svc.ChangeAnchor(ctx, a.ID, ptr(b.ID), UpdateFields{})
	require.ErrorIs(t, err, shared.ErrCycleDetected)

	_, err = svc.ChangeAnchor(ctx, a.ID, ptr(a.ID), UpdateFields{})
	require.ErrorIs(t, err, shared.ErrCycleDetected)
}

func TestChangeAnchorDeepCycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	root := mustCreate(t, svc, "Root", "ORG", nil)
	d1 := mustCreate(t, svc, "D1", "DEPT", ptr(root.ID))
	d2 := mustCreate(t, svc, "D2", "DEPT", ptr(d1.ID))
	d3 := mustCreate(t, svc, "D3", "DEPT", ptr(d2.ID))

	_, err := svc.ChangeAnchor(ctx, d1.ID, ptr(d3.ID), UpdateFields{})
	require.ErrorIs(t, err, shared.ErrCycleDetected)
}

func TestChangeAnchorMovesSubtree(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	org1 := mustCreate(t, svc, "Org1", "ORG", nil)
	org2 := mustCreate(t, svc, "Org2", "ORG", nil)
	dept := mustCreate(t, svc, "Dept", "DEPT", ptr(org1.ID))
	service := mustCreate(t, svc, "Svc", "SERVICE", ptr(dept.ID))

	name := "Dept renamed"
	moved, err := svc.ChangeAnchor(ctx, dept.ID, ptr(org2.ID), UpdateFields{Name: &name})
	require.NoError(t, err)
	require.Equal(t, org2.ID, *moved.ParentID)
	require.Equal(t, name, moved.Name)

	desc, err := svc.DescendantsOf(ctx, org2.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{dept.ID, service.ID}, desc)

	desc, err = svc.DescendantsOf(ctx, org1.ID)
	require.NoError(t, err)
	require.Empty(t, desc)

	got, err := svc.Get(ctx, service.ID)
	require.NoError(t, err)
	require.Equal(t, dept.ID, *got.ParentID)
}

func TestChangeAnchorChecksParentType(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	org := mustCreate(t, svc, "Org", "ORG", nil)
	dept := mustCreate(t, svc, "Dept", "DEPT", ptr(org.ID))
	other := mustCreate(t, svc, "Other", "ORG", nil)
	service := mustCreate(t, svc, "Svc", "SERVICE", ptr(dept.ID))

	_, err := svc.ChangeAnchor(ctx, service.ID, ptr(other.ID), UpdateFields{})
	require.ErrorIs(t, err, shared.ErrInvalidParentType)
}

func TestChangeAnchorToRoot(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	org := mustCreate(t, svc, "Org", "ORG", nil)
	dept := mustCreate(t, svc, "Dept", "DEPT", ptr(org.ID))

	moved, err := svc.ChangeAnchor(ctx, dept.ID, nil, UpdateFields{})
	require.NoError(t, err)
	require.Nil(t, moved.ParentID)
}

func TestPossibleParentsExcludesSelfAndDescendants(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	org := mustCreate(t, svc, "Org", "ORG", nil)
	d1 := mustCreate(t, svc, "D1", "DEPT", ptr(org.ID))
	d2 := mustCreate(t, svc, "D2", "DEPT", ptr(d1.ID))
	d3 := mustCreate(t, svc, "D3", "DEPT", ptr(org.ID))
	mustCreate(t, svc, "S", "SERVICE", ptr(d3.ID))

	parents, err := svc.PossibleParents(ctx, "DEPT", d1.ID)
	require.NoError(t, err)
	ids := make([]int64, 0, len(parents))
	for _, p := range parents {
		ids = append(ids, p.ID)
	}
	require.Equal(t, []int64{org.ID, d3.ID}, ids)
	require.NotContains(t, ids, d2.ID)

	parents, err = svc.PossibleParents(ctx, "DEPT", 0)
	require.NoError(t, err)
	require.Len(t, parents, 4)

	parents, err = svc.PossibleParents(ctx, "UNKNOWN", 0)
	require.NoError(t, err)
	require.Empty(t, parents)
}

func TestNoStructureIsItsOwnDescendant(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	org := mustCreate(t, svc, "Org", "ORG", nil)
	var ids []int64
	parent := org.ID
	for i := 0; i < 5; i++ {
		d := mustCreate(t, svc, "D", "DEPT", ptr(parent))
		ids = append(ids, d.ID)
		parent = d.ID
	}
	// attempt every re-parent; none may introduce a cycle
	all := append([]int64{org.ID}, ids...)
	for _, child := range ids {
		for _, p := range all {
			_, _ = svc.ChangeAnchor(ctx, child, ptr(p), UpdateFields{})
		}
	}
	for _, id := range all {
		desc, err := svc.DescendantsOf(ctx, id)
		require.NoError(t, err)
		require.NotContains(t, desc, id)
	}
}

func TestConcurrentAnchorChangesStayAcyclic(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	org := mustCreate(t, svc, "Org", "ORG", nil)
	a := mustCreate(t, svc, "A", "DEPT", ptr(org.ID))
	b := mustCreate(t, svc, "B", "DEPT", ptr(org.ID))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.ChangeAnchor(ctx, a.ID, ptr(b.ID), UpdateFields{})
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.ChangeAnchor(ctx, b.ID, ptr(a.ID), UpdateFields{})
		}()
	}
	wg.Wait()

	for _, id := range []int64{a.ID, b.ID} {
		desc, err := svc.DescendantsOf(ctx, id)
		require.NoError(t, err)
		require.NotContains(t, desc, id)
	}
}
