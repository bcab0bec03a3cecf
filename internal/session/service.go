package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-access/internal/associations"
	"github.com/odyssey-erp/odyssey-access/internal/catalog"
	"github.com/odyssey-erp/odyssey-access/internal/rbac"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// Ledger is the association ledger surface used for sessions.
type Ledger interface {
	Create(ctx context.Context, in associations.CreateInput) (associations.Association, error)
	SwitchDefault(ctx context.Context, userID int64, id string, hook associations.Hook) (associations.SwitchResult, error)
	Current(ctx context.Context, userID int64) (associations.Association, error)
	WithCurrent(ctx context.Context, userID int64, fn func(ctx context.Context, current associations.Association) error) error
}

// PrivilegeResolver computes the privileges granted by a profile.
type PrivilegeResolver interface {
	ResolveForProfile(ctx context.Context, profileCode string) ([]catalog.Privilege, error)
}

// UserDirectory reports whether a user may receive credentials.
type UserDirectory interface {
	IsBlocked(ctx context.Context, userID int64) (bool, error)
}

// Metrics receives session instrumentation.
type Metrics interface {
	SwitchOutcome(outcome string)
	IssuerCall(op string, elapsed time.Duration, err error)
}

type nopMetrics struct{}

func (nopMetrics) SwitchOutcome(string)                    {}
func (nopMetrics) IssuerCall(string, time.Duration, error) {}

// Switch outcomes reported to Metrics.
const (
	OutcomeSwitched          = "switched"
	OutcomeAlreadyCurrent    = "already_current"
	OutcomeBlocked           = "blocked"
	OutcomeIssuerUnavailable = "issuer_unavailable"
	OutcomeRejected          = "rejected"
)

// Result is returned by operations that may issue credentials.
type Result struct {
	Association    associations.Association  `json:"association"`
	Demoted        *associations.Association `json:"demoted,omitempty"`
	Claims         *Claims                   `json:"claims,omitempty"`
	Credentials    *Credentials              `json:"credentials,omitempty"`
	AlreadyCurrent bool                      `json:"alreadyCurrent"`
}

// Service couples ledger mutations with credential issuance.
type Service struct {
	ledger   Ledger
	resolver PrivilegeResolver
	users    UserDirectory
	issuer   TokenIssuer
	metrics  Metrics
	logger   *slog.Logger
}

// NewService builds Service instance.
func NewService(ledger Ledger, resolver PrivilegeResolver, users UserDirectory, issuer TokenIssuer, metrics Metrics, logger *slog.Logger) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger:   ledger,
		resolver: resolver,
		users:    users,
		issuer:   issuer,
		metrics:  metrics,
		logger:   logger,
	}
}

// SetDefault switches the user's CURRENT association to associationID and
// issues credentials for it. The switch is rolled back when issuance fails.
// Switching to the association that is already CURRENT mutates nothing and
// re-issues credentials.
func (s *Service) SetDefault(ctx context.Context, userID int64, associationID string) (Result, error) {
	if err := s.ensureNotBlocked(ctx, userID); err != nil {
		s.metrics.SwitchOutcome(outcomeFor(err))
		return Result{}, err
	}

	var (
		claims Claims
		creds  Credentials
	)
	switched, err := s.ledger.SwitchDefault(ctx, userID, associationID, func(ctx context.Context, promoted associations.Association) error {
		if err := s.ensureNotBlocked(ctx, userID); err != nil {
			return err
		}
		var err error
		claims, creds, err = s.issueFor(ctx, promoted)
		return err
	})
	switch {
	case errors.Is(err, shared.ErrAlreadyCurrent):
		return s.reissueCurrent(ctx, userID, switched.Current.ID)
	case err != nil:
		s.metrics.SwitchOutcome(outcomeFor(err))
		s.logger.Warn("session set default failed",
			slog.Int64("user_id", userID),
			slog.String("association_id", associationID),
			slog.Any("error", err))
		return Result{}, err
	}

	s.metrics.SwitchOutcome(OutcomeSwitched)
	s.logger.Info("session default switched",
		slog.Int64("user_id", userID),
		slog.String("association_id", switched.Current.ID),
		slog.String("profile", switched.Current.ProfileCode))
	return Result{
		Association: switched.Current,
		Demoted:     switched.Demoted,
		Claims:      &claims,
		Credentials: &creds,
	}, nil
}

// reissueCurrent issues fresh credentials for associationID when it is still
// the user's CURRENT association.
func (s *Service) reissueCurrent(ctx context.Context, userID int64, associationID string) (Result, error) {
	var res Result
	err := s.ledger.WithCurrent(ctx, userID, func(ctx context.Context, current associations.Association) error {
		if current.ID != associationID {
			return fmt.Errorf("session: %s is no longer current: %w", associationID, shared.ErrInvalidTransition)
		}
		if err := s.ensureNotBlocked(ctx, userID); err != nil {
			return err
		}
		claims, creds, err := s.issueFor(ctx, current)
		if err != nil {
			return err
		}
		res = Result{Association: current, Claims: &claims, Credentials: &creds, AlreadyCurrent: true}
		return nil
	})
	if err != nil {
		s.metrics.SwitchOutcome(outcomeFor(err))
		return Result{}, err
	}
	s.metrics.SwitchOutcome(OutcomeAlreadyCurrent)
	return res, nil
}

// AddProfile creates an association. When it becomes the user's CURRENT one,
// credentials are issued inside the same critical section and an issuance
// failure discards the association. Blocked users get the association
// without credentials.
func (s *Service) AddProfile(ctx context.Context, in associations.CreateInput) (Result, error) {
	if _, err := s.users.IsBlocked(ctx, in.UserID); err != nil {
		return Result{}, err
	}

	var (
		claims Claims
		creds  Credentials
		issued bool
	)
	in.OnPromote = func(ctx context.Context, promoted associations.Association) error {
		blocked, err := s.users.IsBlocked(ctx, promoted.UserID)
		if err != nil || blocked {
			return err
		}
		claims, creds, err = s.issueFor(ctx, promoted)
		issued = err == nil
		return err
	}
	a, err := s.ledger.Create(ctx, in)
	if err != nil {
		return Result{}, err
	}
	res := Result{Association: a}
	if issued {
		res.Claims = &claims
		res.Credentials = &creds
	}
	return res, nil
}

// Current returns the user's CURRENT association with its resolved claims.
func (s *Service) Current(ctx context.Context, userID int64) (Result, error) {
	a, err := s.ledger.Current(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	claims, err := s.claimsFor(ctx, a)
	if err != nil {
		return Result{}, err
	}
	return Result{Association: a, Claims: &claims}, nil
}

// Refresh rotates a refresh token against the user's CURRENT association.
// The token must have been issued for that association; once it is revoked,
// demoted or expired the token is refused with shared.ErrInvalidToken.
func (s *Service) Refresh(ctx context.Context, userID int64, refreshToken string) (Credentials, error) {
	if err := s.ensureNotBlocked(ctx, userID); err != nil {
		return Credentials{}, err
	}
	var creds Credentials
	err := s.ledger.WithCurrent(ctx, userID, func(ctx context.Context, current associations.Association) error {
		if err := s.ensureNotBlocked(ctx, userID); err != nil {
			return err
		}
		claims, err := s.claimsFor(ctx, current)
		if err != nil {
			return err
		}
		start := time.Now()
		creds, err = s.issuer.Refresh(ctx, refreshToken, claims)
		s.metrics.IssuerCall("refresh", time.Since(start), err)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, shared.ErrInvalidToken):
			return err
		default:
			return fmt.Errorf("session: refresh: %w: %w", shared.ErrIssuerUnavailable, err)
		}
	})
	if errors.Is(err, shared.ErrNotFound) {
		return Credentials{}, fmt.Errorf("session: user %d has no live session: %w", userID, shared.ErrInvalidToken)
	}
	if err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

func (s *Service) ensureNotBlocked(ctx context.Context, userID int64) error {
	blocked, err := s.users.IsBlocked(ctx, userID)
	if err != nil {
		return err
	}
	if blocked {
		return fmt.Errorf("session: user %d: %w", userID, shared.ErrUserBlocked)
	}
	return nil
}

func (s *Service) claimsFor(ctx context.Context, a associations.Association) (Claims, error) {
	privs, err := s.resolver.ResolveForProfile(ctx, a.ProfileCode)
	if err != nil {
		return Claims{}, err
	}
	return Claims{
		UserID:        a.UserID,
		AssociationID: a.ID,
		ProfileCode:   a.ProfileCode,
		StructureID:   a.StructureID,
		Privileges:    rbac.PrivilegeCodes(privs),
	}, nil
}

func (s *Service) issueFor(ctx context.Context, a associations.Association) (Claims, Credentials, error) {
	claims, err := s.claimsFor(ctx, a)
	if err != nil {
		return Claims{}, Credentials{}, err
	}
	start := time.Now()
	creds, err := s.issuer.Issue(ctx, claims)
	s.metrics.IssuerCall("issue", time.Since(start), err)
	if err != nil {
		return Claims{}, Credentials{}, fmt.Errorf("session: issue for %s: %w: %w", a.ID, shared.ErrIssuerUnavailable, err)
	}
	return claims, creds, nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, shared.ErrIssuerUnavailable):
		return OutcomeIssuerUnavailable
	case errors.Is(err, shared.ErrUserBlocked):
		return OutcomeBlocked
	default:
		return OutcomeRejected
	}
}
