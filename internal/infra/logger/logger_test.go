package logger

import (
	"context"
	"testing"
)

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"john.doe@example.com": "joh***@example.com",
		"a@b.io":               "a***@b.io",
		"":                     "",
		"no-at-sign":           "***",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskIP(t *testing.T) {
	if got := MaskIP("192.168.1.100"); got != "192.168.*.*" {
		t.Fatalf("unexpected ipv4 mask %q", got)
	}
	if got := MaskIP("2001:0db8:85a3:0000:0000:8a2e:0370:7334"); got != "2001:0db8:85a3:0000:*:*:*:*" {
		t.Fatalf("unexpected ipv6 mask %q", got)
	}
	if got := MaskIP("garbage"); got != "***" {
		t.Fatalf("unexpected mask %q", got)
	}
}

func TestMaskRateLimitKey(t *testing.T) {
	if got := MaskRateLimitKey("login:10.1.2.3"); got != "login:10.1.*.*" {
		t.Fatalf("unexpected key mask %q", got)
	}
	if got := MaskRateLimitKey("login-email:jane@example.com"); got != "login-email:jan***@example.com" {
		t.Fatalf("unexpected key mask %q", got)
	}
	if got := MaskRateLimitKey("plain"); got != "***" {
		t.Fatalf("unexpected key mask %q", got)
	}
}

func TestRequestIDFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), RequestIDKey{}, "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
}
