package security

import (
	"fmt"
	"strings"
)

const (
	defaultMinPasswordLength   = 8
	defaultMaxPasswordLength   = 128
	defaultMinCharacterClasses = 3
)

// PasswordPolicyConfig describes the password rules enforced at registration.
// A MinStrengthScore of zero disables the zxcvbn check.
type PasswordPolicyConfig struct {
	MinLength           int
	MaxLength           int
	MinCharacterClasses int
	MinStrengthScore    int
}

// DefaultPasswordPolicyConfig returns the built-in policy: 8 to 128 characters
// drawn from at least three character classes.
func DefaultPasswordPolicyConfig() PasswordPolicyConfig {
	return PasswordPolicyConfig{
		MinLength:           defaultMinPasswordLength,
		MaxLength:           defaultMaxPasswordLength,
		MinCharacterClasses: defaultMinCharacterClasses,
	}
}

// Validate checks the policy for internally inconsistent values.
func (c PasswordPolicyConfig) Validate() error {
	if c.MinLength <= 0 {
		return fmt.Errorf("password policy: min length must be positive")
	}
	if c.MaxLength > 0 && c.MaxLength < c.MinLength {
		return fmt.Errorf("password policy: max length %d is below min length %d", c.MaxLength, c.MinLength)
	}
	if c.MinCharacterClasses < 0 || c.MinCharacterClasses > 4 {
		return fmt.Errorf("password policy: character classes must be between 0 and 4")
	}
	if c.MinStrengthScore < 0 || c.MinStrengthScore > 4 {
		return fmt.Errorf("password policy: strength score must be between 0 and 4")
	}
	return nil
}

// DefaultPasswordValidator returns a validator enforcing the default policy.
func DefaultPasswordValidator() *PasswordValidator {
	return NewPasswordPolicy(DefaultPasswordPolicyConfig()).validator(nil)
}

// PasswordPolicy builds a rule set per call so zxcvbn can penalise passwords
// derived from the user's own email or name.
type PasswordPolicy struct {
	cfg PasswordPolicyConfig
}

// NewPasswordPolicy constructs a policy from configuration.
func NewPasswordPolicy(cfg PasswordPolicyConfig) *PasswordPolicy {
	return &PasswordPolicy{cfg: cfg}
}

// Config returns the policy parameters.
func (p *PasswordPolicy) Config() PasswordPolicyConfig {
	return p.cfg
}

// Validate applies the policy. userInputs are only consulted by the strength rule.
func (p *PasswordPolicy) Validate(password string, userInputs ...string) error {
	if p == nil {
		return fmt.Errorf("password policy not configured")
	}
	return p.validator(userInputs).Validate(password)
}

func (p *PasswordPolicy) validator(userInputs []string) *PasswordValidator {
	inputs := make([]string, 0, len(userInputs))
	for _, in := range userInputs {
		if trimmed := strings.TrimSpace(in); trimmed != "" {
			inputs = append(inputs, trimmed)
		}
	}

	return NewPasswordValidator(
		MinLengthRule(p.cfg.MinLength),
		MaxLengthRule(p.cfg.MaxLength),
		RequireCharacterClassesRule(p.cfg.MinCharacterClasses),
		RequirePasswordStrengthRule(p.cfg.MinStrengthScore, inputs...),
	)
}
