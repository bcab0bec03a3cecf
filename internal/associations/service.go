package associations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/odyssey-erp/odyssey-access/internal/events"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// TxRepository mutates one user's associations inside a transaction.
type TxRepository interface {
	Get(ctx context.Context, id string) (Association, error)
	Current(ctx context.Context) (Association, bool, error)
	Insert(ctx context.Context, a Association) error
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
}

// RepositoryPort defines ledger persistence.
type RepositoryPort interface {
	Get(ctx context.Context, id string) (Association, error)
	ListByUser(ctx context.Context, userID int64) ([]Association, error)
	ListExpiring(ctx context.Context, now time.Time) ([]Association, error)
	WithinUser(ctx context.Context, userID int64, fn func(ctx context.Context, tx TxRepository) error) error
}

// AuditPort records ledger changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the association lifecycle and the one-CURRENT-per-user rule.
type Service struct {
	repo      RepositoryPort
	locker    shared.Locker
	publisher events.Publisher
	audit     AuditPort
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, locker shared.Locker, publisher events.Publisher, audit AuditPort, logger *slog.Logger) *Service {
	if locker == nil {
		locker = shared.NewLocalLocker()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		locker:    locker,
		publisher: publisher,
		audit:     audit,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) withUser(ctx context.Context, userID int64, fn func(ctx context.Context, tx TxRepository) error) error {
	unlock, err := s.locker.Lock(ctx, shared.UserLockKey(userID))
	if err != nil {
		return fmt.Errorf("associations: lock user %d: %w", userID, err)
	}
	defer unlock()
	return s.repo.WithinUser(ctx, userID, fn)
}

// Create inserts an association. It lands CURRENT when the user has none,
// PENDING otherwise.
func (s *Service) Create(ctx context.Context, in CreateInput) (Association, error) {
	in.ProfileCode = shared.NormalizeCode(in.ProfileCode)
	in.TypeCode = shared.NormalizeCode(in.TypeCode)
	if in.UserID <= 0 || in.StructureID <= 0 || in.ProfileCode == "" {
		return Association{}, fmt.Errorf("associations: user, profile and structure required: %w", shared.ErrValidation)
	}
	now := s.now()
	start := in.StartDate
	if start.IsZero() {
		start = now
	}
	if in.EndDate != nil && in.EndDate.Before(start) {
		return Association{}, fmt.Errorf("associations: end %s before start %s: %w",
			in.EndDate.Format(time.RFC3339), start.Format(time.RFC3339), shared.ErrInvalidPeriod)
	}

	a := Association{
		ID:          ulid.Make().String(),
		UserID:      in.UserID,
		ProfileCode: in.ProfileCode,
		StructureID: in.StructureID,
		TypeCode:    in.TypeCode,
		StartDate:   start,
		EndDate:     in.EndDate,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.withUser(ctx, in.UserID, func(ctx context.Context, tx TxRepository) error {
		_, hasCurrent, err := tx.Current(ctx)
		if err != nil {
			return err
		}
		if !hasCurrent {
			a.Status = StatusCurrent
		}
		if err := tx.Insert(ctx, a); err != nil {
			return err
		}
		if a.Status == StatusCurrent && in.OnPromote != nil {
			return in.OnPromote(ctx, a)
		}
		return nil
	})
	if err != nil {
		return Association{}, err
	}

	s.emit(ctx, events.AssociationCreated, a, nil)
	return a, nil
}

// Revoke marks an association INACTIVE. A revoked CURRENT association
// leaves the user without one until the next switch.
func (s *Service) Revoke(ctx context.Context, id string) (Association, error) {
	found, err := s.repo.Get(ctx, id)
	if err != nil {
		return Association{}, err
	}
	var out Association
	err = s.withUser(ctx, found.UserID, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if a.Status == StatusInactive {
			return fmt.Errorf("associations: %s already inactive: %w", id, shared.ErrInvalidTransition)
		}
		now := s.now()
		if err := tx.UpdateStatus(ctx, id, StatusInactive, now); err != nil {
			return err
		}
		a.Status = StatusInactive
		a.UpdatedAt = now
		out = a
		return nil
	})
	if err != nil {
		return Association{}, err
	}
	s.emit(ctx, events.AssociationRevoked, out, nil)
	return out, nil
}

// SetDefault promotes id to CURRENT for userID.
func (s *Service) SetDefault(ctx context.Context, userID int64, id string) (Association, error) {
	res, err := s.SwitchDefault(ctx, userID, id, nil)
	return res.Current, err
}

// SwitchDefault demotes the user's CURRENT association to PENDING, promotes
// id and runs hook before committing. A hook error rolls both changes back.
// When id is already CURRENT it returns the association with
// shared.ErrAlreadyCurrent and mutates nothing.
func (s *Service) SwitchDefault(ctx context.Context, userID int64, id string, hook Hook) (SwitchResult, error) {
	var res SwitchResult
	err := s.withUser(ctx, userID, func(ctx context.Context, tx TxRepository) error {
		target, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		switch {
		case target.Status == StatusCurrent:
			res.Current = target
			return fmt.Errorf("associations: %s: %w", id, shared.ErrAlreadyCurrent)
		case target.Status == StatusInactive, target.Expired(now):
			return fmt.Errorf("associations: %s is %s: %w", id, target.Status, shared.ErrInvalidTransition)
		}

		prev, hasCurrent, err := tx.Current(ctx)
		if err != nil {
			return err
		}
		if hasCurrent {
			if err := tx.UpdateStatus(ctx, prev.ID, StatusPending, now); err != nil {
				return err
			}
			prev.Status = StatusPending
			prev.UpdatedAt = now
			res.Demoted = &prev
		}
		if err := tx.UpdateStatus(ctx, target.ID, StatusCurrent, now); err != nil {
			return err
		}
		target.Status = StatusCurrent
		target.UpdatedAt = now
		res.Current = target
		res.Switched = true
		if hook != nil {
			return hook(ctx, target)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrAlreadyCurrent) {
			return SwitchResult{Current: res.Current}, err
		}
		return SwitchResult{}, err
	}

	meta := map[string]any{}
	if res.Demoted != nil {
		meta["demoted"] = res.Demoted.ID
	}
	s.emit(ctx, events.AssociationDefaultSwitched, res.Current, meta)
	return res, nil
}

// Get returns one association.
func (s *Service) Get(ctx context.Context, id string) (Association, error) {
	return s.repo.Get(ctx, id)
}

// ListByUser returns the full history for a user, oldest start first.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]Association, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sortByStart(list)
	return list, nil
}

// ListActive returns associations that are not INACTIVE and not past their end date.
func (s *Service) ListActive(ctx context.Context, userID int64) ([]Association, error) {
	list, err := s.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]Association, 0, len(list))
	for _, a := range list {
		if a.Active(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

// Current returns the user's CURRENT association.
func (s *Service) Current(ctx context.Context, userID int64) (Association, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return Association{}, err
	}
	for _, a := range list {
		if a.Status == StatusCurrent {
			return a, nil
		}
	}
	return Association{}, fmt.Errorf("associations: user %d has no current association: %w", userID, shared.ErrNotFound)
}

// WithCurrent runs fn with the user's CURRENT association inside the user's
// critical section. It fails with shared.ErrNotFound when the user has no
// CURRENT association or the CURRENT one is past its end date.
func (s *Service) WithCurrent(ctx context.Context, userID int64, fn func(ctx context.Context, current Association) error) error {
	return s.withUser(ctx, userID, func(ctx context.Context, tx TxRepository) error {
		cur, ok, err := tx.Current(ctx)
		if err != nil {
			return err
		}
		if !ok || !cur.Active(s.now()) {
			return fmt.Errorf("associations: user %d has no current association: %w", userID, shared.ErrNotFound)
		}
		return fn(ctx, cur)
	})
}

// ExpireDue moves every association past its end date to INACTIVE and
// returns how many were changed.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ListExpiring(ctx, now)
	if err != nil {
		return 0, err
	}
	byUser := make(map[int64][]string)
	var userIDs []int64
	for _, a := range due {
		if _, ok := byUser[a.UserID]; !ok {
			userIDs = append(userIDs, a.UserID)
		}
		byUser[a.UserID] = append(byUser[a.UserID], a.ID)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	var (
		expired int
		errs    []error
	)
	for _, userID := range userIDs {
		var changed []Association
		err := s.withUser(ctx, userID, func(ctx context.Context, tx TxRepository) error {
			for _, id := range byUser[userID] {
				a, err := tx.Get(ctx, id)
				if err != nil {
					return err
				}
				if a.Status == StatusInactive || !a.Expired(now) {
					continue
				}
				if err := tx.UpdateStatus(ctx, id, StatusInactive, now); err != nil {
					return err
				}
				a.Status = StatusInactive
				a.UpdatedAt = now
				changed = append(changed, a)
			}
			return nil
		})
		if err != nil {
			s.logger.Error("expire associations", slog.Int64("user_id", userID), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		for _, a := range changed {
			s.emit(ctx, events.AssociationExpired, a, nil)
		}
		expired += len(changed)
	}
	return expired, errors.Join(errs...)
}

func (s *Service) emit(ctx context.Context, eventType string, a Association, meta map[string]any) {
	key := fmt.Sprintf("user:%d", a.UserID)
	if err := s.publisher.Publish(ctx, events.New(eventType, key, a)); err != nil {
		s.logger.Warn("publish association event", slog.String("type", eventType), slog.Any("error", err))
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["status"] = string(a.Status)
	meta["profile"] = a.ProfileCode
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   eventType,
		Entity:   "user_profile_association",
		EntityID: a.ID,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("association audit", slog.String("action", eventType), slog.Any("error", err))
	}
}

func sortByStart(list []Association) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].StartDate.Equal(list[j].StartDate) {
			return list[i].StartDate.Before(list[j].StartDate)
		}
		return list[i].ID < list[j].ID
	})
}
