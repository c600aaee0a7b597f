package domain

import "time"

// User mirrors the persisted representation in the users table.
type User struct {
	ID                   string
	Email                string
	PasswordHash         string
	FirstName            string
	LastName             string
	IsEmailVerified      bool
	IsActive             bool
	LastLogin            *time.Time
	ResetPasswordToken   *string
	ResetPasswordExpires *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PublicUser is the only user representation allowed to leave the service.
// It carries no credential or reset material.
type PublicUser struct {
	ID              string
	Email           string
	FirstName       string
	LastName        string
	IsEmailVerified bool
	IsActive        bool
	LastLogin       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Public strips secrets from the user record.
func (u User) Public() PublicUser {
	var lastLogin *time.Time
	if u.LastLogin != nil {
		ts := u.LastLogin.UTC()
		lastLogin = &ts
	}

	return PublicUser{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		IsEmailVerified: u.IsEmailVerified,
		IsActive:        u.IsActive,
		LastLogin:       lastLogin,
		CreatedAt:       u.CreatedAt.UTC(),
		UpdatedAt:       u.UpdatedAt.UTC(),
	}
}

// NewUser holds validated registration data ready for persistence.
type NewUser struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

// UserUpdate lists the mutable user fields. Nil fields are left unchanged.
type UserUpdate struct {
	FirstName       *string
	LastName        *string
	PasswordHash    *string
	LastLogin       *time.Time
	IsEmailVerified *bool
	IsActive        *bool
}

// IsEmpty reports whether the update carries no changes.
func (u UserUpdate) IsEmpty() bool {
	return u.FirstName == nil &&
		u.LastName == nil &&
		u.PasswordHash == nil &&
		u.LastLogin == nil &&
		u.IsEmailVerified == nil &&
		u.IsActive == nil
}

// RegisterInput is the raw, unvalidated registration request.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// ProfileUpdate is the raw, unvalidated profile change request.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
}

// AuthResult is returned by successful register and login flows.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      PublicUser
}
