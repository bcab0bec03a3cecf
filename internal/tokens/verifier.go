package tokens

import (
	"context"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// Verifier turns a bearer access token into a principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (*shared.Principal, error)
}

// NewVerifier returns an access token verifier for the shared HS256 secret.
// Tokens minted by the remote issuer are expected to use the same secret.
func NewVerifier(secret []byte, issuer string) (*JWTIssuer, error) {
	return NewJWTIssuer(JWTConfig{Secret: secret, Issuer: issuer}, nil)
}
