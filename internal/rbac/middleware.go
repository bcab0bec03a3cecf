package rbac

import (
	"context"
	"net/http"
	"strings"

	"log/slog"

	"github.com/odyssey-erp/odyssey-access/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// Authenticator verifies bearer access tokens.
type Authenticator interface {
	Verify(ctx context.Context, token string) (*shared.Principal, error)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Authenticator Authenticator
	Logger        *slog.Logger
}

// Authenticate attaches the bearer token's principal to the request context.
// Requests without a token pass through anonymously.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" || m.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := m.Authenticator.Verify(r.Context(), token)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("rbac verify token", slog.Any("error", err))
			}
			httpx.RespondError(w, shared.ErrInvalidToken)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireAny ensures the current principal has at least one of the required privileges.
func (m Middleware) RequireAny(privs ...string) func(http.Handler) http.Handler {
	return m.require(privs, hasAnyPrivilege)
}

// RequireAll ensures the current principal has all required privileges.
func (m Middleware) RequireAll(privs ...string) func(http.Handler) http.Handler {
	return m.require(privs, hasAllPrivileges)
}

func (m Middleware) require(privs []string, check func(granted, required []string) bool) func(http.Handler) http.Handler {
	normalized := shared.NormalizeCodes(privs)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if check(principal.Privileges, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Info("rbac denied", slog.Int64("user_id", principal.UserID), slog.Any("required", normalized))
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := r.Header.Get("Authorization")
	if len(raw) < 7 || !strings.EqualFold(raw[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(raw[7:])
}

func hasAnyPrivilege(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := privilegeSet(granted)
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllPrivileges(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := privilegeSet(granted)
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}

func privilegeSet(granted []string) map[string]struct{} {
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[shared.NormalizeCode(p)] = struct{}{}
	}
	return set
}
