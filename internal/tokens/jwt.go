package tokens

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/odyssey-erp/odyssey-access/internal/session"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// JWTConfig configures the local issuer.
type JWTConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AccessClaims is the payload of access tokens.
type AccessClaims struct {
	Association string   `json:"association,omitempty"`
	Profile     string   `json:"profile"`
	Structure   int64    `json:"structure"`
	Privileges  []string `json:"privileges"`
	jwt.RegisteredClaims
}

// JWTIssuer signs HS256 access tokens and rotates opaque refresh tokens.
type JWTIssuer struct {
	cfg   JWTConfig
	store RefreshStore
	now   func() time.Time
}

// NewJWTIssuer constructs a JWTIssuer.
func NewJWTIssuer(cfg JWTConfig, store RefreshStore) (*JWTIssuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("tokens: secret is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "odyssey-access"
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &JWTIssuer{cfg: cfg, store: store, now: func() time.Time { return time.Now().UTC() }}, nil
}

var (
	_ session.TokenIssuer = (*JWTIssuer)(nil)
	_ Verifier            = (*JWTIssuer)(nil)
)

// Issue implements session.TokenIssuer.
func (j *JWTIssuer) Issue(ctx context.Context, claims session.Claims) (session.Credentials, error) {
	now := j.now()
	accessExp := now.Add(j.cfg.AccessTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		Association: claims.AssociationID,
		Profile:     claims.ProfileCode,
		Structure:   claims.StructureID,
		Privileges:  claims.Privileges,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.cfg.Issuer,
			Subject:   strconv.FormatInt(claims.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(j.cfg.Secret)
	if err != nil {
		return session.Credentials{}, fmt.Errorf("tokens: sign: %w", err)
	}

	id := ulid.Make().String()
	secret, err := randomSecret()
	if err != nil {
		return session.Credentials{}, err
	}
	rec := RefreshRecord{UserID: claims.UserID, SecretHash: hashSecret(secret), Claims: claims}
	if err := j.store.Save(ctx, id, rec, j.cfg.RefreshTTL); err != nil {
		return session.Credentials{}, fmt.Errorf("tokens: save refresh: %w", err)
	}

	return session.Credentials{
		AccessToken:      signed,
		RefreshToken:     id + "." + secret,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: now.Add(j.cfg.RefreshTTL),
	}, nil
}

// Refresh implements session.TokenIssuer. The presented token is consumed
// even when it is rejected. The new pair carries current, so privilege
// changes on the bound association show up on rotation.
func (j *JWTIssuer) Refresh(ctx context.Context, refreshToken string, current session.Claims) (session.Credentials, error) {
	id, secret, ok := strings.Cut(refreshToken, ".")
	if !ok || id == "" || secret == "" {
		return session.Credentials{}, fmt.Errorf("tokens: malformed refresh token: %w", shared.ErrInvalidToken)
	}
	rec, err := j.store.Take(ctx, id)
	if err != nil {
		return session.Credentials{}, err
	}
	if rec.UserID != current.UserID || subtle.ConstantTimeCompare(rec.SecretHash, hashSecret(secret)) != 1 {
		return session.Credentials{}, fmt.Errorf("tokens: refresh %s does not match: %w", id, shared.ErrInvalidToken)
	}
	if !sameBinding(rec.Claims, current) {
		return session.Credentials{}, fmt.Errorf("tokens: refresh %s bound to association %q: %w", id, rec.Claims.AssociationID, shared.ErrInvalidToken)
	}
	return j.Issue(ctx, current)
}

func sameBinding(a, b session.Claims) bool {
	return a.AssociationID != "" &&
		a.AssociationID == b.AssociationID &&
		a.ProfileCode == b.ProfileCode &&
		a.StructureID == b.StructureID
}

// Verify parses an access token into a principal.
func (j *JWTIssuer) Verify(_ context.Context, token string) (*shared.Principal, error) {
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), &AccessClaims{}, func(*jwt.Token) (any, error) {
		return j.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, fmt.Errorf("tokens: %w: %w", shared.ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("tokens: unexpected claims: %w", shared.ErrInvalidToken)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("tokens: bad subject %q: %w", claims.Subject, shared.ErrInvalidToken)
	}
	return &shared.Principal{
		UserID:      userID,
		ProfileCode: claims.Profile,
		StructureID: claims.Structure,
		Privileges:  claims.Privileges,
	}, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("tokens: random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashSecret(secret string) []byte {
	sum := blake2b.Sum256([]byte(secret))
	return sum[:]
}
