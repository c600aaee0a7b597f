package domain

import "time"

// IssuedToken is a signed bearer token together with its validity metadata.
type IssuedToken struct {
	Token     string
	JTI       string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenClaims is the verified content of a bearer token.
type TokenClaims struct {
	UserID    string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenRevocation captures a revoked token identifier and its natural expiry.
type TokenRevocation struct {
	JTI       string
	UserID    string
	ExpiresAt time.Time
	RevokedAt time.Time
	Reason    string
}

// RateLimitWindow describes a key's attempt budget after a limiter hit.
type RateLimitWindow struct {
	Key         string
	Count       int
	Limit       int
	WindowStart time.Time
	ResetAt     time.Time
	Allowed     bool
}

// Remaining returns how many attempts are left in the current window.
func (w RateLimitWindow) Remaining() int {
	if rem := w.Limit - w.Count; rem > 0 {
		return rem
	}
	return 0
}

// RetryAfter returns how long the caller should wait before the next attempt
// can succeed. Zero when the window still has capacity.
func (w RateLimitWindow) RetryAfter(now time.Time) time.Duration {
	if w.Allowed && w.Count < w.Limit {
		return 0
	}
	if d := w.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
