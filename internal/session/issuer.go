package session

//go:generate mockgen -destination=mocks/mock_issuer.go -package=mocks github.com/odyssey-erp/odyssey-access/internal/session TokenIssuer

import (
	"context"
	"time"
)

// Claims are the session facts bound into credentials.
type Claims struct {
	UserID        int64    `json:"userId"`
	AssociationID string   `json:"associationId"`
	ProfileCode   string   `json:"profileCode"`
	StructureID   int64    `json:"structureId"`
	Privileges    []string `json:"privileges"`
}

// Credentials is an access/refresh token pair.
type Credentials struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// TokenIssuer mints and rotates credentials.
type TokenIssuer interface {
	Issue(ctx context.Context, claims Claims) (Credentials, error)
	// Refresh consumes refreshToken and mints a pair carrying current. A token
	// minted for another user or association fails with shared.ErrInvalidToken.
	Refresh(ctx context.Context, refreshToken string, current Claims) (Credentials, error)
}
