package domain

import "time"

// UserRegisteredEvent represents the payload for auth.user.registered messages.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Email        string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// UserLoggedInEvent represents the payload for auth.user.logged_in messages.
type UserLoggedInEvent struct {
	EventID          string
	UserID           string
	LoggedInAt       time.Time
	PasswordRehashed bool
	Metadata         map[string]any
}

// TokenRevokedEvent represents the payload for auth.token.revoked messages.
type TokenRevokedEvent struct {
	EventID   string
	JTI       string
	UserID    string
	ExpiresAt time.Time
	RevokedAt time.Time
	Reason    string
	Metadata  map[string]any
}
