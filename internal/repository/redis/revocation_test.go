package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestRevocationRepository_AddAndContains(t *testing.T) {
	client, server := newTestRedis(t)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := NewRevocationRepository(client, "revoked").WithClock(func() time.Time { return now })

	ctx := context.Background()
	ttl := 2 * time.Minute

	err := repo.AddRevocation(ctx, domain.TokenRevocation{
		JTI:       "jti-123",
		UserID:    "user-1",
		ExpiresAt: now.Add(ttl),
		Reason:    "logout",
	})
	if err != nil {
		t.Fatalf("AddRevocation returned error: %v", err)
	}

	revoked, err := repo.Contains(ctx, "jti-123")
	if err != nil {
		t.Fatalf("Contains returned error: %v", err)
	}
	if !revoked {
		t.Fatalf("expected jti to be marked revoked")
	}

	reason, ok, err := repo.Reason(ctx, "jti-123")
	if err != nil || !ok || reason != "logout" {
		t.Fatalf("expected reason logout, got %q ok=%v err=%v", reason, ok, err)
	}

	remaining := server.TTL("revoked:jti-123")
	if remaining <= 0 || remaining > ttl {
		t.Fatalf("expected ttl within (0, %v], got %v", ttl, remaining)
	}

	server.FastForward(ttl + time.Second)
	revoked, err = repo.Contains(ctx, "jti-123")
	if err != nil {
		t.Fatalf("Contains returned error: %v", err)
	}
	if revoked {
		t.Fatalf("expected revocation to expire with the token")
	}
}

func TestRevocationRepository_SkipsExpiredTokens(t *testing.T) {
	client, server := newTestRedis(t)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := NewRevocationRepository(client, "").WithClock(func() time.Time { return now })

	err := repo.AddRevocation(context.Background(), domain.TokenRevocation{
		JTI:       "old",
		ExpiresAt: now.Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("AddRevocation returned error: %v", err)
	}
	if server.Exists("revoked:old") {
		t.Fatalf("expired token must not be stored")
	}
}

func TestRevocationRepository_InvalidInput(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRevocationRepository(client, "revoked")

	if err := repo.AddRevocation(context.Background(), domain.TokenRevocation{JTI: " "}); err == nil {
		t.Fatalf("expected error for empty jti")
	}
	if _, err := repo.Contains(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty jti in Contains")
	}
}

func TestRevocationRepository_BackendFailure(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRevocationRepository(client, "revoked")

	server.Close()
	if _, err := repo.Contains(context.Background(), "jti"); err == nil {
		t.Fatalf("expected error when redis is unavailable")
	}
}
