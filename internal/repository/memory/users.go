// Package memory holds process-local repository implementations used when no
// external database is configured and in tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/repository"
)

// UserRepository stores users in a map guarded by a mutex. The email index is
// updated under the same lock as the insert, so duplicate detection is atomic.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[string]domain.User
	byEmail map[string]string
	now     func() time.Time
}

// NewUserRepository constructs an empty in-memory user store.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[string]domain.User),
		byEmail: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source for deterministic tests.
func (r *UserRepository) WithClock(clock func() time.Time) *UserRepository {
	if clock != nil {
		r.now = clock
	}
	return r
}

func (r *UserRepository) Create(ctx context.Context, user domain.NewUser) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Transient("insert user", err)
	}

	email := strings.ToLower(strings.TrimSpace(user.Email))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[email]; exists {
		return nil, repository.ErrDuplicateEmail
	}

	now := r.now()
	stored := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: user.PasswordHash,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.byID[stored.ID] = stored
	r.byEmail[email] = stored.ID

	return cloneUser(stored), nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Transient("select user", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneUser(user), nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Transient("select user by email", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneUser(r.byID[id]), nil
}

func (r *UserRepository) Update(ctx context.Context, id string, update domain.UserUpdate) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Transient("update user", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if update.IsEmpty() {
		return cloneUser(user), nil
	}

	if update.FirstName != nil {
		user.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		user.LastName = *update.LastName
	}
	if update.PasswordHash != nil {
		user.PasswordHash = *update.PasswordHash
	}
	if update.LastLogin != nil {
		ts := update.LastLogin.UTC()
		user.LastLogin = &ts
	}
	if update.IsEmailVerified != nil {
		user.IsEmailVerified = *update.IsEmailVerified
	}
	if update.IsActive != nil {
		user.IsActive = *update.IsActive
	}
	user.UpdatedAt = r.now()

	r.byID[id] = user
	return cloneUser(user), nil
}

// Len returns the number of stored users.
func (r *UserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func cloneUser(u domain.User) *domain.User {
	out := u
	if u.LastLogin != nil {
		ts := *u.LastLogin
		out.LastLogin = &ts
	}
	if u.ResetPasswordToken != nil {
		tok := *u.ResetPasswordToken
		out.ResetPasswordToken = &tok
	}
	if u.ResetPasswordExpires != nil {
		ts := *u.ResetPasswordExpires
		out.ResetPasswordExpires = &ts
	}
	return &out
}

var _ port.UserRepository = (*UserRepository)(nil)
