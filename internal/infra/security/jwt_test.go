package security

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestTokenService(t *testing.T, now *time.Time) (*TokenService, *JTIDenylist) {
	t.Helper()
	clock := func() time.Time { return *now }
	denylist := NewJTIDenylist(JTIDenylistOptions{}).WithClock(clock)
	svc, err := NewTokenService(TokenConfig{
		Secret:   testSecret,
		TTL:      time.Hour,
		Issuer:   "auth-service",
		Audience: []string{"social-platform"},
	}, denylist)
	if err != nil {
		t.Fatalf("NewTokenService returned error: %v", err)
	}
	return svc.WithClock(clock), denylist
}

func TestTokenServiceIssueAndVerify(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestTokenService(t, &now)

	issued, err := svc.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if issued.JTI == "" {
		t.Fatal("expected jti to be set")
	}
	if !issued.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %s", issued.ExpiresAt)
	}

	claims, err := svc.Verify(context.Background(), issued.Token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.UserID != "user-123" {
		t.Fatalf("expected user-123, got %s", claims.UserID)
	}
	if claims.JTI != issued.JTI {
		t.Fatalf("expected jti %s, got %s", issued.JTI, claims.JTI)
	}
}

func TestTokenServiceRejectsExpiredToken(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestTokenService(t, &now)

	issued, err := svc.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	now = now.Add(time.Hour - time.Second)
	if _, err := svc.Verify(context.Background(), issued.Token); err != nil {
		t.Fatalf("token should still be valid one second before expiry: %v", err)
	}

	now = issued.ExpiresAt
	if _, err := svc.Verify(context.Background(), issued.Token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken at expiry, got %v", err)
	}
}

func TestTokenServiceRejectsTamperedToken(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestTokenService(t, &now)

	issued, err := svc.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	parts := strings.Split(issued.Token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	for _, token := range []string{tampered, "not-a-jwt", "", issued.Token + "x"} {
		_, err := svc.Verify(context.Background(), token)
		if !errors.Is(err, domain.ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", token, err)
		}
		if !errors.Is(err, domain.ErrAuth) {
			t.Fatalf("invalid token must be classified as auth error")
		}
	}
}

func TestTokenServiceRejectsForeignSecretAndAlgorithm(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestTokenService(t, &now)

	claims := AccessTokenClaims{
		UserID: "user-123",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "auth-service",
			Audience:  jwt.ClaimStrings{"social-platform"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        "jti-1",
		},
	}

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("another-secret-another-secret-xx"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Verify(context.Background(), foreign); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign secret, got %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := svc.Verify(context.Background(), none); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for alg=none, got %v", err)
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign hs512: %v", err)
	}
	if _, err := svc.Verify(context.Background(), hs512); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for HS512, got %v", err)
	}
}

func TestTokenServiceRejectsWrongIssuer(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestTokenService(t, &now)

	other, err := NewTokenService(TokenConfig{Secret: testSecret, Issuer: "someone-else"}, nil)
	if err != nil {
		t.Fatalf("NewTokenService returned error: %v", err)
	}
	issued, err := other.WithClock(func() time.Time { return now }).Issue("user-123")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := svc.Verify(context.Background(), issued.Token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong issuer, got %v", err)
	}
}

func TestTokenServiceRevoke(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, denylist := newTestTokenService(t, &now)
	ctx := context.Background()

	issued, err := svc.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	claims, err := svc.Verify(ctx, issued.Token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}

	if err := svc.Revoke(ctx, *claims, "logout"); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	if denylist.Len() != 1 {
		t.Fatalf("expected one denylist entry, got %d", denylist.Len())
	}

	if _, err := svc.Verify(ctx, issued.Token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}

	other, err := svc.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if _, err := svc.Verify(ctx, other.Token); err != nil {
		t.Fatalf("revocation must only affect the revoked jti: %v", err)
	}
}

func TestNewTokenServiceValidatesConfig(t *testing.T) {
	if _, err := NewTokenService(TokenConfig{Secret: []byte("short"), Issuer: "x"}, nil); !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("expected ErrSecretTooShort, got %v", err)
	}
	if _, err := NewTokenService(TokenConfig{Secret: testSecret}, nil); err == nil {
		t.Fatal("expected error for missing issuer")
	}

	svc, err := NewTokenService(TokenConfig{Secret: testSecret, Issuer: "x"}, nil)
	if err != nil {
		t.Fatalf("NewTokenService returned error: %v", err)
	}
	if svc.TTL() != 24*time.Hour {
		t.Fatalf("expected default ttl of 24h, got %s", svc.TTL())
	}
}
