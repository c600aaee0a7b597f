package security

import (
	"context"
	"testing"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

func TestJTIDenylistContainsAndPrune(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewJTIDenylist(JTIDenylistOptions{})
	cache.WithClock(func() time.Time { return base })

	revocation := domain.TokenRevocation{
		JTI:       "revoked-jti",
		ExpiresAt: base.Add(2 * time.Minute),
	}
	if err := cache.AddRevocation(ctx, revocation); err != nil {
		t.Fatalf("AddRevocation failed: %v", err)
	}

	contains, err := cache.Contains(ctx, "revoked-jti")
	if err != nil {
		t.Fatalf("Contains returned error: %v", err)
	}
	if !contains {
		t.Fatalf("expected jti to be present in denylist")
	}

	// Advance clock beyond expiration and prune.
	cache.WithClock(func() time.Time { return base.Add(3 * time.Minute) })
	if err := cache.Prune(ctx, cache.currentTime()); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	if cache.Len() != 0 {
		t.Fatalf("expected prune to drop expired entry, %d remain", cache.Len())
	}

	contains, err = cache.Contains(ctx, "revoked-jti")
	if err != nil {
		t.Fatalf("Contains returned error after prune: %v", err)
	}
	if contains {
		t.Fatalf("expected jti to be removed after expiry")
	}
}

func TestJTIDenylistIgnoresAlreadyExpiredTokens(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewJTIDenylist(JTIDenylistOptions{}).WithClock(func() time.Time { return base })

	if err := cache.AddRevocation(ctx, domain.TokenRevocation{JTI: "old", ExpiresAt: base.Add(-time.Second)}); err != nil {
		t.Fatalf("AddRevocation failed: %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("expired token must not be stored")
	}

	if err := cache.AddRevocation(ctx, domain.TokenRevocation{JTI: " "}); err == nil {
		t.Fatalf("expected error for blank jti")
	}
}

func TestJTIDenylistEvictsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewJTIDenylist(JTIDenylistOptions{MaxEntries: 2}).WithClock(func() time.Time { return base })

	for i, jti := range []string{"a", "b", "c"} {
		err := cache.AddRevocation(ctx, domain.TokenRevocation{
			JTI:       jti,
			ExpiresAt: base.Add(time.Duration(i+1) * time.Minute),
		})
		if err != nil {
			t.Fatalf("AddRevocation(%s) failed: %v", jti, err)
		}
	}

	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}
	if ok, _ := cache.Contains(ctx, "a"); ok {
		t.Fatalf("expected soonest-expiring entry to be evicted")
	}
	if ok, _ := cache.Contains(ctx, "c"); !ok {
		t.Fatalf("expected newest entry to be present")
	}
}
