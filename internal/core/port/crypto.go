package port

import (
	"context"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
	NeedsRehash(encoded string) bool
}

// TokenIssuer signs and verifies bearer tokens.
type TokenIssuer interface {
	Issue(userID string) (domain.IssuedToken, error)
	Verify(ctx context.Context, token string) (*domain.TokenClaims, error)
	Revoke(ctx context.Context, claims domain.TokenClaims, reason string) error
}

// CredentialValidator canonicalises and validates user supplied credentials.
type CredentialValidator interface {
	ValidateEmail(raw string) (string, error)
	ValidatePassword(raw string, userInputs ...string) (string, error)
	ValidateName(raw string, field string) (string, error)
}
