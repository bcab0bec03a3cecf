package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Insert(ctx context.Context, u User) (User, error)
	Get(ctx context.Context, id int64) (User, error)
	List(ctx context.Context) ([]User, error)
	SetBlocked(ctx context.Context, id int64, blocked bool) (User, error)
}

// AuditPort records administrative changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	locker shared.Locker
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// WithLocker makes SetBlocked take the user's critical section, the one the
// association ledger mutates under.
func (s *Service) WithLocker(l shared.Locker) *Service {
	s.locker = l
	return s
}

// Create registers a user.
func (s *Service) Create(ctx context.Context, u User) (User, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.FirstName = strings.TrimSpace(u.FirstName)
	u.LastName = strings.TrimSpace(u.LastName)
	if u.Email == "" {
		return User{}, fmt.Errorf("users: email required: %w", shared.ErrValidation)
	}
	created, err := s.repo.Insert(ctx, u)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, "user.created", created.ID, map[string]any{"email": created.Email})
	return created, nil
}

// Get returns a user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// SetBlocked toggles the flag that gates session issuance.
func (s *Service) SetBlocked(ctx context.Context, id int64, blocked bool) (User, error) {
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, shared.UserLockKey(id))
		if err != nil {
			return User{}, fmt.Errorf("users: lock user %d: %w", id, err)
		}
		defer unlock()
	}
	u, err := s.repo.SetBlocked(ctx, id, blocked)
	if err != nil {
		return User{}, err
	}
	action := "user.unblocked"
	if blocked {
		action = "user.blocked"
	}
	s.record(ctx, action, id, nil)
	return u, nil
}

// IsBlocked reports whether the user is blocked. Unknown users are reported as NotFound.
func (s *Service) IsBlocked(ctx context.Context, id int64) (bool, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return u.Blocked, nil
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "user",
		EntityID: fmt.Sprint(id),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("users audit", slog.String("action", action), slog.Any("error", err))
	}
}
