package domain

import "errors"

// Error kinds. Every error returned by the auth flows wraps exactly one of
// these so transports can map it without knowing individual causes.
var (
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrAuth       = errors.New("authentication error")
	ErrRateLimit  = errors.New("rate limit exceeded")
	ErrTransient  = errors.New("service temporarily unavailable")
)

var (
	// ErrEmailExists indicates the email is already registered.
	ErrEmailExists = newKindError(ErrConflict, "user with this email already exists")
	// ErrInvalidCredentials is returned for unknown emails and wrong passwords alike.
	ErrInvalidCredentials = newKindError(ErrAuth, "invalid email or password")
	// ErrUnauthenticated indicates a missing, unknown, or deactivated principal.
	ErrUnauthenticated = newKindError(ErrAuth, "not authorized")
	// ErrInvalidToken covers malformed, forged, expired, and revoked tokens.
	ErrInvalidToken = newKindError(ErrAuth, "invalid token")
	// ErrRateLimited indicates the caller exhausted its attempt budget.
	ErrRateLimited = newKindError(ErrRateLimit, "too many requests, please try again later")
)

type kindError struct {
	kind error
	msg  string
}

func newKindError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

// NewValidationError constructs a ValidationError for the given field.
func NewValidationError(field, code, message string) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: message}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransientError wraps an infrastructure failure that may succeed on retry
// (timeouts, unavailable backends).
type TransientError struct {
	Op  string
	Err error
}

// Transient marks err as retryable. A nil err yields nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

func (e *TransientError) Error() string {
	if e.Op == "" {
		return ErrTransient.Error() + ": " + e.Err.Error()
	}
	return e.Op + ": " + ErrTransient.Error() + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() []error { return []error{ErrTransient, e.Err} }

// ErrorKind names the taxonomy bucket of an error, used for metrics labels and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrRateLimit):
		return "rate_limit"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "fatal"
	}
}
