package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsInDevelopment(t *testing.T) {
	t.Setenv("AUTH_APP_ENV", "development")
	t.Setenv("AUTH_JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.JWT.AccessTokenTTL != 24*time.Hour {
		t.Fatalf("expected 24h token ttl, got %s", cfg.JWT.AccessTokenTTL)
	}
	if cfg.RateLimit.LoginMaxAttempts != 5 {
		t.Fatalf("expected 5 login attempts, got %d", cfg.RateLimit.LoginMaxAttempts)
	}
	if cfg.RateLimit.WindowDuration != 15*time.Minute {
		t.Fatalf("expected 15m window, got %s", cfg.RateLimit.WindowDuration)
	}
	if cfg.Password.MinLength != 8 || cfg.Password.MinCharacterClasses != 3 {
		t.Fatalf("unexpected password defaults: %+v", cfg.Password)
	}
	if len(cfg.JWT.Secret) < 32 {
		t.Fatalf("expected development secret fallback")
	}
	if !cfg.IsDevelopment() {
		t.Fatalf("expected development environment")
	}
	if len(cfg.App.TrustedProxies) != 0 {
		t.Fatalf("expected no trusted proxies by default, got %v", cfg.App.TrustedProxies)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("AUTH_APP_ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", strings.Repeat("s", 40))
	t.Setenv("AUTH_JWT_ACCESS_TOKEN_TTL", "2h")
	t.Setenv("AUTH_RATE_LIMIT_LOGIN_MAX_ATTEMPTS", "10")
	t.Setenv("AUTH_STORAGE_DRIVER", "memory")
	t.Setenv("AUTH_APP_TRUSTED_PROXIES", "10.0.0.0/8,192.168.1.1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.JWT.AccessTokenTTL != 2*time.Hour {
		t.Fatalf("expected 2h ttl, got %s", cfg.JWT.AccessTokenTTL)
	}
	if cfg.RateLimit.LoginMaxAttempts != 10 {
		t.Fatalf("expected 10 attempts, got %d", cfg.RateLimit.LoginMaxAttempts)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("expected memory storage, got %s", cfg.Storage.Driver)
	}
	if len(cfg.App.TrustedProxies) != 2 || cfg.App.TrustedProxies[0] != "10.0.0.0/8" {
		t.Fatalf("unexpected trusted proxies: %v", cfg.App.TrustedProxies)
	}
}

func TestLoadRequiresSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("AUTH_APP_ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", "too-short")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for short secret in production")
	}
}

func TestValidateRejectsUnknownDrivers(t *testing.T) {
	cfg := AppConfig{
		JWT:       JWTSettings{Secret: strings.Repeat("k", 32), AccessTokenTTL: time.Hour},
		Storage:   StorageSettings{Driver: "sqlite"},
		RateLimit: RateLimitSettings{Store: "redis", WindowDuration: time.Minute},
		Auth:      AuthSettings{OperationTimeout: time.Second},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"storage.driver", "requires redis.enabled"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
}
