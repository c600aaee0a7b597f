package security

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
)

const (
	defaultMaxNameLength  = 50
	defaultMaxEmailLength = 254
)

var nameLabels = map[string]string{
	"firstName": "first name",
	"lastName":  "last name",
}

// CredentialValidator canonicalises and validates registration and login input.
// Every rejection is a *domain.ValidationError naming the offending field.
type CredentialValidator struct {
	validate      *validator.Validate
	policy        *PasswordPolicy
	maxNameLength int
}

// NewCredentialValidator wires the password policy used by ValidatePassword.
func NewCredentialValidator(policy *PasswordPolicy) *CredentialValidator {
	if policy == nil {
		policy = NewPasswordPolicy(DefaultPasswordPolicyConfig())
	}
	return &CredentialValidator{
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		policy:        policy,
		maxNameLength: defaultMaxNameLength,
	}
}

// ValidateEmail trims the address, checks its syntax, and returns it lowercased.
func (v *CredentialValidator) ValidateEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", domain.NewValidationError("email", "required", "email is required")
	}
	if len(email) > defaultMaxEmailLength {
		return "", domain.NewValidationError("email", "invalid_email", "please provide a valid email")
	}
	if err := v.validate.Var(email, "email"); err != nil {
		return "", domain.NewValidationError("email", "invalid_email", "please provide a valid email")
	}
	return strings.ToLower(email), nil
}

// ValidatePassword checks raw against the password policy. The password is
// returned unmodified; whitespace is significant.
func (v *CredentialValidator) ValidatePassword(raw string, userInputs ...string) (string, error) {
	if raw == "" {
		return "", domain.NewValidationError("password", "required", "password is required")
	}

	if err := v.policy.Validate(raw, userInputs...); err != nil {
		var pErr *PasswordValidationError
		if errors.As(err, &pErr) {
			return "", domain.NewValidationError("password", pErr.Code, pErr.Message)
		}
		return "", err
	}

	return raw, nil
}

// ValidateName trims raw and enforces a 1..50 character length.
func (v *CredentialValidator) ValidateName(raw string, field string) (string, error) {
	label, ok := nameLabels[field]
	if !ok {
		label = field
	}

	name := strings.TrimSpace(raw)
	if name == "" {
		return "", domain.NewValidationError(field, "required", label+" is required")
	}
	if utf8.RuneCountInString(name) > v.maxNameLength {
		return "", domain.NewValidationError(field, "max_length", fmt.Sprintf("%s cannot exceed %d characters", label, v.maxNameLength))
	}
	return name, nil
}

var _ port.CredentialValidator = (*CredentialValidator)(nil)
