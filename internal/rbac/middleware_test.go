package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

type stubAuthenticator map[string]*shared.Principal

func (s stubAuthenticator) Verify(_ context.Context, token string) (*shared.Principal, error) {
	if p, ok := s[token]; ok {
		return p, nil
	}
	return nil, errors.New("unknown token")
}

func TestMiddlewareRequireAny(t *testing.T) {
	m := Middleware{Authenticator: stubAuthenticator{
		"admin":  {UserID: 1, Privileges: []string{"access.catalog.edit"}},
		"viewer": {UserID: 2, Privileges: []string{"ACCESS.CATALOG.VIEW"}},
	}}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := m.Authenticate(m.RequireAny(shared.PrivCatalogEdit)(ok))

	cases := map[string]int{
		"":       http.StatusUnauthorized,
		"bogus":  http.StatusUnauthorized,
		"viewer": http.StatusForbidden,
		"admin":  http.StatusNoContent,
	}
	for token, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, want, rr.Code, token)
	}
}

func TestHasAllPrivileges(t *testing.T) {
	require.True(t, hasAllPrivileges([]string{"a", "B"}, []string{"A", "B"}))
	require.False(t, hasAllPrivileges([]string{"A"}, []string{"A", "B"}))
	require.True(t, hasAnyPrivilege(nil, nil))
}
