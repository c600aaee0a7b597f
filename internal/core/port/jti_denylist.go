package port

import (
	"context"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// JTIDenylist records revoked token identifiers until they expire naturally.
type JTIDenylist interface {
	AddRevocation(ctx context.Context, revocation domain.TokenRevocation) error
	Contains(ctx context.Context, jti string) (bool, error)
}
