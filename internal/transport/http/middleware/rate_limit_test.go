package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/repository/memory"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

type fakeRateLimitStore struct {
	window domain.RateLimitWindow
	err    error

	hitKeys []string
}

func (f *fakeRateLimitStore) Hit(_ context.Context, key string, limit int, window time.Duration, now time.Time) (domain.RateLimitWindow, error) {
	f.hitKeys = append(f.hitKeys, key)
	if f.err != nil {
		return domain.RateLimitWindow{}, f.err
	}
	w := f.window
	w.Key = key
	w.Limit = limit
	return w, nil
}

func (f *fakeRateLimitStore) Reset(context.Context, string) error { return nil }

func staticIdentifier(id string) IdentifierFunc {
	return func(*gin.Context) (string, bool) { return id, true }
}

func newRateLimitedRouter(t *testing.T, limiter *RateLimiter, rules ...RateLimitRule) (*gin.Engine, *int) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	calls := 0
	router := gin.New()
	router.Use(limiter.RateLimit(rules...))
	router.POST("/login", func(c *gin.Context) {
		calls++
		c.Status(http.StatusOK)
	})
	return router, &calls
}

func post(router http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiterAllowsWhenBelowLimit(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	oldest := now.Add(-30 * time.Second)

	store := &fakeRateLimitStore{window: domain.RateLimitWindow{
		Count:       3,
		WindowStart: now.Add(-time.Minute),
		ResetAt:     oldest.Add(time.Minute),
		Allowed:     true,
	}}
	attempts := usecase.NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return now })
	limiter := NewRateLimiter(attempts, zaptest.NewLogger(t))

	router, calls := newRateLimitedRouter(t, limiter, RateLimitRule{
		Name:       "login",
		Limit:      5,
		Window:     time.Minute,
		Identifier: staticIdentifier("192.0.2.1"),
	})

	rr := post(router, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if *calls != 1 {
		t.Fatalf("expected handler to run once, got %d", *calls)
	}
	if len(store.hitKeys) != 1 || store.hitKeys[0] != "login:192.0.2.1" {
		t.Fatalf("unexpected store keys %v", store.hitKeys)
	}

	if got := rr.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("expected limit header 5, got %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "2" {
		t.Fatalf("expected remaining header 2, got %q", got)
	}
	expectedReset := oldest.Add(time.Minute).Unix()
	if got := rr.Header().Get("X-RateLimit-Reset"); got != strconv.FormatInt(expectedReset, 10) {
		t.Fatalf("expected reset header %d, got %q", expectedReset, got)
	}
	if got := rr.Header().Get("Retry-After"); got != "" {
		t.Fatalf("expected no retry-after header, got %q", got)
	}
}

func TestRateLimiterBlocksWhenLimitExceeded(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	oldest := now.Add(-30 * time.Second)

	store := &fakeRateLimitStore{window: domain.RateLimitWindow{
		Count:   5,
		ResetAt: oldest.Add(time.Minute),
		Allowed: false,
	}}
	attempts := usecase.NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return now })

	registry := prometheus.NewRegistry()
	metrics, err := NewHTTPMetrics(HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewHTTPMetrics: %v", err)
	}
	limiter := NewRateLimiter(attempts, zaptest.NewLogger(t)).WithMetrics(metrics)

	router, calls := newRateLimitedRouter(t, limiter, RateLimitRule{
		Name:       "login",
		Limit:      5,
		Window:     time.Minute,
		Identifier: staticIdentifier("192.0.2.1"),
	})

	rr := post(router, "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if *calls != 0 {
		t.Fatal("handler must not run when rate limited")
	}
	if got := rr.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected retry-after 30, got %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected remaining 0, got %q", got)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body) != 1 || body["error"] != "too many requests, please try again later" {
		t.Fatalf("unexpected body %v", body)
	}

	if got := testutil.ToFloat64(metrics.RateLimited.WithLabelValues("login")); got != 1 {
		t.Fatalf("expected one rate limited observation, got %f", got)
	}
}

func TestRateLimiterFailsOpenOnStoreError(t *testing.T) {
	store := &fakeRateLimitStore{err: errors.New("redis down")}
	attempts := usecase.NewRateLimiter(store, zaptest.NewLogger(t))
	limiter := NewRateLimiter(attempts, zaptest.NewLogger(t))

	router, calls := newRateLimitedRouter(t, limiter, RateLimitRule{
		Name:       "login",
		Limit:      5,
		Window:     time.Minute,
		Identifier: staticIdentifier("192.0.2.1"),
	})

	rr := post(router, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 when failing open, got %d", rr.Code)
	}
	if *calls != 1 {
		t.Fatalf("expected handler to run, got %d calls", *calls)
	}
	if got := rr.Header().Get("X-RateLimit-Limit"); got != "" {
		t.Fatalf("expected no rate limit headers on store failure, got %q", got)
	}
}

func TestRateLimiterIsolatesClientsByIP(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	attempts := usecase.NewRateLimiter(memory.NewRateLimitStore(), zaptest.NewLogger(t)).
		WithClock(func() time.Time { return now })
	limiter := NewRateLimiter(attempts, zaptest.NewLogger(t))

	router, calls := newRateLimitedRouter(t, limiter, RateLimitRule{
		Name:       "login",
		Limit:      3,
		Window:     15 * time.Minute,
		Identifier: ClientIPIdentifier(),
	})

	limited := 0
	for i := 0; i < 5; i++ {
		if rr := post(router, "198.51.100.10:4000"); rr.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 2 {
		t.Fatalf("expected 2 limited responses, got %d", limited)
	}

	if rr := post(router, "198.51.100.11:4000"); rr.Code != http.StatusOK {
		t.Fatalf("distinct client must be unaffected, got %d", rr.Code)
	}
	if *calls != 4 {
		t.Fatalf("expected 4 handler invocations, got %d", *calls)
	}
}

func TestRateLimiterSkipsDisabledRules(t *testing.T) {
	store := &fakeRateLimitStore{}
	limiter := NewRateLimiter(usecase.NewRateLimiter(store, nil), nil)

	router, calls := newRateLimitedRouter(t, limiter,
		RateLimitRule{Name: "nolimit", Window: time.Minute, Identifier: staticIdentifier("x")},
		RateLimitRule{Name: "noident", Limit: 1, Window: time.Minute},
	)

	if rr := post(router, ""); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if *calls != 1 || len(store.hitKeys) != 0 {
		t.Fatalf("disabled rules must not touch the store: calls=%d keys=%v", *calls, store.hitKeys)
	}
}
