package security

import (
	"errors"
	"strings"
	"testing"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

func TestDefaultPasswordValidatorSuccess(t *testing.T) {
	validator := DefaultPasswordValidator()

	for _, password := range []string{"C0mplex!Passphrase#2025", "Password123", "abcd123!"} {
		if err := validator.Validate(password); err != nil {
			t.Fatalf("expected %q to pass validation, got %v", password, err)
		}
	}
}

func TestDefaultPasswordValidatorViolations(t *testing.T) {
	validator := DefaultPasswordValidator()

	assertViolation := func(password, expectedCode string) {
		t.Helper()
		err := validator.Validate(password)
		if err == nil {
			t.Fatalf("expected validation error for %s", expectedCode)
		}
		var vErr *PasswordValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected PasswordValidationError, got %T", err)
		}
		if vErr.Code != expectedCode {
			t.Fatalf("expected %s code, got %s", expectedCode, vErr.Code)
		}
	}

	assertViolation("Short1!", "min_length")
	assertViolation("lowercasepassword", "character_classes")
	assertViolation("ALLUPPER123", "character_classes")
	assertViolation("Aa1!"+strings.Repeat("x", 125), "max_length")
}

func TestPasswordPolicyStrengthRule(t *testing.T) {
	cfg := DefaultPasswordPolicyConfig()
	cfg.MinStrengthScore = 3
	policy := NewPasswordPolicy(cfg)

	strong := "C0mplex!Passphrase#2025"
	if strength := zxcvbn.PasswordStrength(strong, nil); strength.Score < 3 {
		t.Fatalf("test password unexpectedly weak: score=%d", strength.Score)
	}
	if err := policy.Validate(strong); err != nil {
		t.Fatalf("expected strong password to pass, got %v", err)
	}

	err := policy.Validate("Password123")
	var vErr *PasswordValidationError
	if !errors.As(err, &vErr) || vErr.Code != "weak_password" {
		t.Fatalf("expected weak_password violation, got %v", err)
	}
}

func TestPasswordPolicyConfigValidate(t *testing.T) {
	if err := DefaultPasswordPolicyConfig().Validate(); err != nil {
		t.Fatalf("default policy should be valid: %v", err)
	}

	bad := []PasswordPolicyConfig{
		{MinLength: 0, MaxLength: 10},
		{MinLength: 12, MaxLength: 8},
		{MinLength: 8, MinCharacterClasses: 5},
		{MinLength: 8, MinStrengthScore: 7},
	}
	for _, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
}

func TestCustomPasswordValidator(t *testing.T) {
	validator := NewPasswordValidator(
		MinLengthRule(4),
		MaxLengthRule(6),
	)

	if err := validator.Validate("abc"); err == nil {
		t.Fatalf("expected validation error for short password")
	}
	if err := validator.Validate("abcdefg"); err == nil {
		t.Fatalf("expected validation error for long password")
	}
	if err := validator.Validate("abcde"); err != nil {
		t.Fatalf("expected password to pass custom validation, got %v", err)
	}
}
