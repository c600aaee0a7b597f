package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRateLimitRepository_HitEnforcesLimit(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "auth"})

	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	for i := 1; i <= 5; i++ {
		res, err := repo.Hit(ctx, "login:10.0.0.1", 5, window, base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("Hit %d returned error: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("attempt %d should be allowed", i)
		}
		if res.Count != i {
			t.Fatalf("expected count %d, got %d", i, res.Count)
		}
		if res.Remaining() != 5-i {
			t.Fatalf("expected remaining %d, got %d", 5-i, res.Remaining())
		}
	}

	now := base.Add(10 * time.Second)
	res, err := repo.Hit(ctx, "login:10.0.0.1", 5, window, now)
	if err != nil {
		t.Fatalf("Hit returned error: %v", err)
	}
	if res.Allowed {
		t.Fatalf("sixth attempt must be rejected")
	}
	if res.Count != 5 {
		t.Fatalf("rejected attempts must not be recorded, count=%d", res.Count)
	}
	wantReset := base.Add(time.Second).Add(window)
	if !res.ResetAt.Equal(wantReset) {
		t.Fatalf("expected reset at %s, got %s", wantReset, res.ResetAt)
	}
	if res.RetryAfter(now) != wantReset.Sub(now) {
		t.Fatalf("unexpected retry after %s", res.RetryAfter(now))
	}

	other, err := repo.Hit(ctx, "login:10.0.0.2", 5, window, now)
	if err != nil {
		t.Fatalf("Hit returned error: %v", err)
	}
	if !other.Allowed {
		t.Fatalf("keys must be limited independently")
	}
}

func TestRateLimitRepository_WindowSlides(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})

	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	window := time.Minute

	for i := 0; i < 2; i++ {
		if _, err := repo.Hit(ctx, "k", 2, window, base); err != nil {
			t.Fatalf("Hit returned error: %v", err)
		}
	}
	if res, _ := repo.Hit(ctx, "k", 2, window, base.Add(window-time.Millisecond)); res.Allowed {
		t.Fatalf("attempt inside the window must be rejected")
	}
	res, err := repo.Hit(ctx, "k", 2, window, base.Add(window))
	if err != nil {
		t.Fatalf("Hit returned error: %v", err)
	}
	if !res.Allowed || res.Count != 1 {
		t.Fatalf("expected window to slide, got %+v", res)
	}
}

func TestRateLimitRepository_Reset(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "auth"})

	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := repo.Hit(ctx, "register:ip", 1, time.Minute, now); err != nil {
		t.Fatalf("Hit returned error: %v", err)
	}
	if !server.Exists("auth:ratelimit:register:ip") {
		t.Fatalf("expected sorted set to exist")
	}
	if err := repo.Reset(ctx, "register:ip"); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	res, err := repo.Hit(ctx, "register:ip", 1, time.Minute, now)
	if err != nil || !res.Allowed {
		t.Fatalf("expected allowed after reset, got %+v err=%v", res, err)
	}
}

func TestRateLimitRepository_ConcurrentHitsNeverExceedLimit(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})

	ctx := context.Background()
	now := time.Now().UTC()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := repo.Hit(ctx, "login:shared", 5, time.Minute, now)
			if err != nil {
				t.Errorf("Hit returned error: %v", err)
				return
			}
			if res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 5 {
		t.Fatalf("expected exactly 5 allowed attempts, got %d", got)
	}
}

func TestRateLimitRepository_RejectsBadArguments(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})

	if _, err := repo.Hit(context.Background(), "k", 5, 0, time.Now()); err == nil {
		t.Fatalf("expected error for zero window")
	}
	if _, err := repo.Hit(context.Background(), "k", 0, time.Minute, time.Now()); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
