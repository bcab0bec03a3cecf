package tokens

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-access/internal/session"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

func TestRemoteIssuerIssue(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/issue", r.URL.Path)
		var claims session.Claims
		require.NoError(t, json.NewDecoder(r.Body).Decode(&claims))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(session.Credentials{AccessToken: "a-" + claims.ProfileCode, RefreshToken: "r"})
	}))
	defer srv.Close()

	issuer := NewRemoteIssuer(RemoteConfig{BaseURL: srv.URL + "/", RetryAttempts: 2, Timeout: time.Second}, nil)
	creds, err := issuer.Issue(context.Background(), session.Claims{UserID: 1, ProfileCode: "X"})
	require.NoError(t, err)
	require.Equal(t, "a-X", creds.AccessToken)
	require.EqualValues(t, 2, calls.Load())
}

func TestRemoteIssuerRefreshRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/refresh", r.URL.Path)
		var req refreshRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "r", req.RefreshToken)
		require.EqualValues(t, 1, req.UserID)
		require.Equal(t, "A1", req.Claims.AssociationID)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	issuer := NewRemoteIssuer(RemoteConfig{BaseURL: srv.URL}, nil)
	_, err := issuer.Refresh(context.Background(), "r", session.Claims{UserID: 1, AssociationID: "A1", ProfileCode: "X"})
	require.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestRemoteIssuerUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	issuer := NewRemoteIssuer(RemoteConfig{BaseURL: srv.URL}, nil)
	_, err := issuer.Issue(context.Background(), session.Claims{UserID: 1})
	require.Error(t, err)
	require.NotErrorIs(t, err, shared.ErrInvalidToken)
}

func TestRemoteIssuerHonoursContext(t *testing.T) {
	issuer := NewRemoteIssuer(RemoteConfig{BaseURL: "http://127.0.0.1:1", RatePerSecond: 0.001, Burst: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := issuer.Issue(ctx, session.Claims{UserID: 1})
	require.Error(t, err)
}
