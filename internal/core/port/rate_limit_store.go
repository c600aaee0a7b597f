package port

import (
	"context"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// RateLimitStore keeps sliding-window attempt logs.
//
// Hit trims entries older than window, counts what remains, and records a new
// attempt only when the count is below limit. The three steps are atomic per key.
type RateLimitStore interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (domain.RateLimitWindow, error)
	Reset(ctx context.Context, key string) error
}
