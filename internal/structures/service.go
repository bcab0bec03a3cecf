package structures

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// RepositoryPort defines data access methods for structures.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Structure, error)
	Insert(ctx context.Context, s Structure) (Structure, error)
	Update(ctx context.Context, s Structure) (Structure, error)
	Children(ctx context.Context, parentID int64) ([]int64, error)
	ListByTypes(ctx context.Context, types []string) ([]Structure, error)
	List(ctx context.Context) ([]Structure, error)
}

// Service maintains the structure forest.
type Service struct {
	repo   RepositoryPort
	rules  Rules
	locker shared.Locker
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, rules Rules, locker shared.Locker, logger *slog.Logger) *Service {
	if locker == nil {
		locker = shared.NewLocalLocker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, rules: rules.normalized(), locker: locker, logger: logger}
}

// Get returns one structure.
func (s *Service) Get(ctx context.Context, id int64) (Structure, error) {
	return s.repo.Get(ctx, id)
}

// List returns every structure ordered by id.
func (s *Service) List(ctx context.Context) ([]Structure, error) {
	return s.repo.List(ctx)
}

// PossibleParents lists structures that may parent a structure of childType.
// When structureID is non-zero the structure and its descendants are excluded.
func (s *Service) PossibleParents(ctx context.Context, childType string, structureID int64) ([]Structure, error) {
	types := s.rules.ParentTypes(childType)
	if len(types) == 0 {
		return []Structure{}, nil
	}
	candidates, err := s.repo.ListByTypes(ctx, types)
	if err != nil {
		return nil, err
	}
	excluded := map[int64]struct{}{}
	if structureID != 0 {
		excluded[structureID] = struct{}{}
		desc, err := s.DescendantsOf(ctx, structureID)
		if err != nil {
			return nil, err
		}
		for _, id := range desc {
			excluded[id] = struct{}{}
		}
	}
	out := make([]Structure, 0, len(candidates))
	for _, c := range candidates {
		if _, skip := excluded[c.ID]; skip {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create inserts a structure under parentID, or as a root when parentID is nil.
func (s *Service) Create(ctx context.Context, st Structure, parentID *int64) (Structure, error) {
	st.TypeCode = shared.NormalizeCode(st.TypeCode)
	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" || st.TypeCode == "" {
		return Structure{}, fmt.Errorf("structures: name and type required: %w", shared.ErrValidation)
	}

	unlock, err := s.locker.Lock(ctx, shared.StructureTreeLockKey())
	if err != nil {
		return Structure{}, err
	}
	defer unlock()

	if parentID != nil {
		parent, err := s.repo.Get(ctx, *parentID)
		if err != nil {
			return Structure{}, err
		}
		if !s.rules.Allows(st.TypeCode, parent.TypeCode) {
			return Structure{}, fmt.Errorf("structures: %s under %s: %w", st.TypeCode, parent.TypeCode, shared.ErrInvalidParentType)
		}
	}
	st.ID = 0
	st.ParentID = parentID
	created, err := s.repo.Insert(ctx, st)
	if err != nil {
		return Structure{}, err
	}
	s.logger.Info("structure created", slog.Int64("id", created.ID), slog.String("type", created.TypeCode))
	return created, nil
}

// ChangeAnchor re-parents structureID under newParentID (nil makes it a root)
// and applies fields. The subtree moves with it.
func (s *Service) ChangeAnchor(ctx context.Context, structureID int64, newParentID *int64, fields UpdateFields) (Structure, error) {
	unlock, err := s.locker.Lock(ctx, shared.StructureTreeLockKey())
	if err != nil {
		return Structure{}, err
	}
	defer unlock()

	st, err := s.repo.Get(ctx, structureID)
	if err != nil {
		return Structure{}, err
	}
	if newParentID != nil {
		if *newParentID == structureID {
			return Structure{}, fmt.Errorf("structures: %d under itself: %w", structureID, shared.ErrCycleDetected)
		}
		parent, err := s.repo.Get(ctx, *newParentID)
		if err != nil {
			return Structure{}, err
		}
		if err := s.checkAncestry(ctx, structureID, parent); err != nil {
			return Structure{}, err
		}
		if !s.rules.Allows(st.TypeCode, parent.TypeCode) {
			return Structure{}, fmt.Errorf("structures: %s under %s: %w", st.TypeCode, parent.TypeCode, shared.ErrInvalidParentType)
		}
	}

	fields.apply(&st)
	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" {
		return Structure{}, fmt.Errorf("structures: name required: %w", shared.ErrValidation)
	}
	st.ParentID = newParentID
	updated, err := s.repo.Update(ctx, st)
	if err != nil {
		return Structure{}, err
	}
	s.logger.Info("structure anchor changed", slog.Int64("id", structureID), slog.Any("parent_id", newParentID))
	return updated, nil
}

// checkAncestry walks from parent up to its root and fails if structureID is met.
func (s *Service) checkAncestry(ctx context.Context, structureID int64, parent Structure) error {
	seen := map[int64]struct{}{}
	cur := parent
	for {
		if cur.ID == structureID {
			return fmt.Errorf("structures: %d is an ancestor of %d: %w", structureID, parent.ID, shared.ErrCycleDetected)
		}
		if _, ok := seen[cur.ID]; ok {
			return fmt.Errorf("structures: existing loop at %d: %w", cur.ID, shared.ErrCycleDetected)
		}
		seen[cur.ID] = struct{}{}
		if cur.ParentID == nil {
			return nil
		}
		next, err := s.repo.Get(ctx, *cur.ParentID)
		if err != nil {
			return err
		}
		cur = next
	}
}

// DescendantsOf returns the ids of every structure below id, breadth first.
func (s *Service) DescendantsOf(ctx context.Context, id int64) ([]int64, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	seen := map[int64]struct{}{id: {}}
	var out []int64
	queue := []int64{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		children, err := s.repo.Children(ctx, cur)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out, nil
}
