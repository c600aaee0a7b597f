package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
)

const defaultRevocationPrefix = "revoked"

// RevocationRepository manages access-token JTI revocation state backed by Redis.
// Keys expire together with the token they describe.
type RevocationRepository struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewRevocationRepository wires a Redis client into a revocation repository.
func NewRevocationRepository(client *red.Client, keyPrefix string) *RevocationRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRevocationPrefix
	}

	return &RevocationRepository{
		client: client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic testing.
func (r *RevocationRepository) WithClock(clock func() time.Time) *RevocationRepository {
	if clock != nil {
		r.now = clock
	}
	return r
}

// AddRevocation stores the JTI with its reason until the token's expiry.
// Tokens that have already expired are not stored.
func (r *RevocationRepository) AddRevocation(ctx context.Context, revocation domain.TokenRevocation) error {
	key := r.key(revocation.JTI)
	if key == "" {
		return errors.New("jti must not be empty")
	}

	ttl := revocation.ExpiresAt.Sub(r.now())
	if revocation.ExpiresAt.IsZero() {
		ttl = 0
	} else if ttl <= 0 {
		return nil
	}

	reason := revocation.Reason
	if reason == "" {
		reason = "revoked"
	}

	if err := r.client.Set(ctx, key, reason, ttl).Err(); err != nil {
		return fmt.Errorf("redis set revoked jti: %w", err)
	}

	return nil
}

// Contains reports whether the JTI has been revoked.
func (r *RevocationRepository) Contains(ctx context.Context, jti string) (bool, error) {
	key := r.key(jti)
	if key == "" {
		return false, errors.New("jti must not be empty")
	}

	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists revoked jti: %w", err)
	}

	return n > 0, nil
}

// Reason returns the stored revocation reason when present.
func (r *RevocationRepository) Reason(ctx context.Context, jti string) (string, bool, error) {
	key := r.key(jti)
	if key == "" {
		return "", false, errors.New("jti must not be empty")
	}

	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get revoked jti: %w", err)
	}

	return value, true, nil
}

func (r *RevocationRepository) key(jti string) string {
	trimmed := strings.TrimSpace(jti)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.prefix, trimmed)
}

var _ port.JTIDenylist = (*RevocationRepository)(nil)
