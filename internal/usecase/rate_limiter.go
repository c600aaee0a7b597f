package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
)

// RateLimitRule names a sliding-window budget.
type RateLimitRule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Enabled reports whether the rule constrains anything.
func (r RateLimitRule) Enabled() bool {
	return r.Limit > 0 && r.Window > 0
}

// RateLimitExceededError indicates the caller exhausted its attempt budget.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	seconds := int(math.Ceil(e.RetryAfter.Seconds()))
	if seconds <= 0 {
		return domain.ErrRateLimited.Error()
	}
	return fmt.Sprintf("%s (retry after %ds)", domain.ErrRateLimited.Error(), seconds)
}

func (e *RateLimitExceededError) Unwrap() error { return domain.ErrRateLimited }

// RateLimiter applies sliding-window rules to attempt keys. The store performs
// trim, count and record atomically, so two concurrent checks can never both
// take the last slot.
type RateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

// NewRateLimiter constructs a limiter over store.
func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		l.now = now
	}
	return l
}

// Check counts an attempt for identifier under rule. A rejected attempt
// returns the window together with a *RateLimitExceededError and is not
// recorded. Store failures are returned as-is so callers can decide whether
// to fail open.
func (l *RateLimiter) Check(ctx context.Context, rule RateLimitRule, identifier string) (domain.RateLimitWindow, error) {
	if l == nil || l.store == nil || !rule.Enabled() {
		return domain.RateLimitWindow{Allowed: true}, nil
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return domain.RateLimitWindow{Allowed: true}, nil
	}

	name := rule.Name
	if name == "" {
		name = "default"
	}
	key := name + ":" + identifier

	now := l.now()
	window, err := l.store.Hit(ctx, key, rule.Limit, rule.Window, now)
	if err != nil {
		return domain.RateLimitWindow{}, fmt.Errorf("rate limit %s: %w", name, err)
	}

	if !window.Allowed {
		return window, &RateLimitExceededError{Scope: name, RetryAfter: window.RetryAfter(now)}
	}
	return window, nil
}

// Reset clears the budget for identifier under rule.
func (l *RateLimiter) Reset(ctx context.Context, rule RateLimitRule, identifier string) error {
	if l == nil || l.store == nil {
		return nil
	}
	name := rule.Name
	if name == "" {
		name = "default"
	}
	if err := l.store.Reset(ctx, name+":"+strings.TrimSpace(identifier)); err != nil {
		return fmt.Errorf("reset rate limit %s: %w", name, err)
	}
	return nil
}

// Now returns the limiter clock reading, used for response headers.
func (l *RateLimiter) Now() time.Time {
	return l.now()
}

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool {
	return errors.Is(err, domain.ErrRateLimited)
}
