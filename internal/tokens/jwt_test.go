package tokens

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-access/internal/session"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

func newIssuer(t *testing.T) (*JWTIssuer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	issuer, err := NewJWTIssuer(JWTConfig{
		Secret:     []byte("test-secret"),
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}, NewRedisRefreshStore(client, ""))
	require.NoError(t, err)
	return issuer, mr
}

var testClaims = session.Claims{UserID: 7, AssociationID: "01JASSOCY", ProfileCode: "Y", StructureID: 42, Privileges: []string{"P2", "P3"}}

func TestIssueAndVerify(t *testing.T) {
	issuer, mr := newIssuer(t)
	ctx := context.Background()

	creds, err := issuer.Issue(ctx, testClaims)
	require.NoError(t, err)
	require.NotEmpty(t, creds.AccessToken)
	require.Contains(t, creds.RefreshToken, ".")
	require.True(t, creds.RefreshExpiresAt.After(creds.AccessExpiresAt))

	id, _, _ := strings.Cut(creds.RefreshToken, ".")
	require.True(t, mr.Exists("access:refresh:"+id))
	require.Equal(t, time.Hour, mr.TTL("access:refresh:"+id))

	p, err := issuer.Verify(ctx, creds.AccessToken)
	require.NoError(t, err)
	require.Equal(t, &shared.Principal{UserID: 7, ProfileCode: "Y", StructureID: 42, Privileges: []string{"P2", "P3"}}, p)
}

func TestVerifyRejects(t *testing.T) {
	issuer, _ := newIssuer(t)
	ctx := context.Background()
	creds, err := issuer.Issue(ctx, testClaims)
	require.NoError(t, err)

	other, err := NewVerifier([]byte("other-secret"), "")
	require.NoError(t, err)
	_, err = other.Verify(ctx, creds.AccessToken)
	require.ErrorIs(t, err, shared.ErrInvalidToken)

	_, err = issuer.Verify(ctx, "not-a-jwt")
	require.ErrorIs(t, err, shared.ErrInvalidToken)

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = issuer.Verify(ctx, creds.AccessToken)
	require.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestRefreshRotates(t *testing.T) {
	issuer, _ := newIssuer(t)
	ctx := context.Background()
	first, err := issuer.Issue(ctx, testClaims)
	require.NoError(t, err)

	current := testClaims
	current.Privileges = []string{"P2"}
	second, err := issuer.Refresh(ctx, first.RefreshToken, current)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	p, err := issuer.Verify(ctx, second.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "Y", p.ProfileCode)
	require.Equal(t, []string{"P2"}, p.Privileges)

	_, err = issuer.Refresh(ctx, first.RefreshToken, testClaims)
	require.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestRefreshRejectsMismatch(t *testing.T) {
	issuer, _ := newIssuer(t)
	ctx := context.Background()

	creds, err := issuer.Issue(ctx, testClaims)
	require.NoError(t, err)
	otherUser := testClaims
	otherUser.UserID = 8
	_, err = issuer.Refresh(ctx, creds.RefreshToken, otherUser)
	require.ErrorIs(t, err, shared.ErrInvalidToken)

	creds, err = issuer.Issue(ctx, testClaims)
	require.NoError(t, err)
	id, _, _ := strings.Cut(creds.RefreshToken, ".")
	_, err = issuer.Refresh(ctx, id+".forged", testClaims)
	require.ErrorIs(t, err, shared.ErrInvalidToken)

	_, err = issuer.Refresh(ctx, "garbage", testClaims)
	require.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestRefreshExpires(t *testing.T) {
	issuer, mr := newIssuer(t)
	ctx := context.Background()
	creds, err := issuer.Issue(ctx, testClaims)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = issuer.Refresh(ctx, creds.RefreshToken, testClaims)
	require.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestRefreshRejectsOtherAssociation(t *testing.T) {
	issuer, _ := newIssuer(t)
	ctx := context.Background()

	moved := testClaims
	moved.AssociationID = "01JASSOCX"
	moved.ProfileCode = "X"
	for name, current := range map[string]session.Claims{
		"association": moved,
		"structure":   {UserID: 7, AssociationID: testClaims.AssociationID, ProfileCode: "Y", StructureID: 43},
	} {
		t.Run(name, func(t *testing.T) {
			creds, err := issuer.Issue(ctx, testClaims)
			require.NoError(t, err)
			_, err = issuer.Refresh(ctx, creds.RefreshToken, current)
			require.ErrorIs(t, err, shared.ErrInvalidToken)
			// a rejected token is spent
			_, err = issuer.Refresh(ctx, creds.RefreshToken, testClaims)
			require.ErrorIs(t, err, shared.ErrInvalidToken)
		})
	}

	unbound := testClaims
	unbound.AssociationID = ""
	creds, err := issuer.Issue(ctx, unbound)
	require.NoError(t, err)
	_, err = issuer.Refresh(ctx, creds.RefreshToken, unbound)
	require.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestNewJWTIssuerRequiresSecret(t *testing.T) {
	_, err := NewJWTIssuer(JWTConfig{}, nil)
	require.Error(t, err)
}
