package handlers

import (
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// ErrorResponse is the only error body the API writes.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewErrorResponse wraps a client-facing message.
func NewErrorResponse(errorMsg string) ErrorResponse {
	return ErrorResponse{Error: errorMsg}
}

// UserResponse is the public user representation. It has no password field
// by construction.
type UserResponse struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	IsEmailVerified bool       `json:"isEmailVerified"`
	IsActive        bool       `json:"isActive"`
	LastLogin       *time.Time `json:"lastLogin"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// RegisterRequest is the POST /api/auth/register body. Field checks happen in
// the auth service so the first failing field is reported consistently.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// LoginRequest is the POST /api/auth/login body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateProfileRequest is the PATCH /api/auth/profile body. Absent fields are
// left unchanged.
type UpdateProfileRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      UserResponse `json:"user"`
}

// UserEnvelope wraps a single user for /me and /profile.
type UserEnvelope struct {
	User UserResponse `json:"user"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Environment string    `json:"environment"`
}

// ReadinessResponse reports the outcome of every dependency check.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	StartedAt time.Time         `json:"startedAt"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func newUserResponse(user domain.PublicUser) UserResponse {
	return UserResponse{
		ID:              user.ID,
		Email:           user.Email,
		FirstName:       user.FirstName,
		LastName:        user.LastName,
		IsEmailVerified: user.IsEmailVerified,
		IsActive:        user.IsActive,
		LastLogin:       user.LastLogin,
		CreatedAt:       user.CreatedAt,
		UpdatedAt:       user.UpdatedAt,
	}
}

func newAuthResponse(result domain.AuthResult) AuthResponse {
	return AuthResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt.UTC(),
		User:      newUserResponse(result.User),
	}
}
