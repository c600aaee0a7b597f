package port

import (
	"context"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// UserRepository exposes persistence behavior for users.
//
// Create must report a duplicate email as repository.ErrDuplicateEmail and
// lookups must report absence as repository.ErrNotFound. Emails are compared
// in their canonical lowercase form.
type UserRepository interface {
	Create(ctx context.Context, user domain.NewUser) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, id string, update domain.UserUpdate) (*domain.User, error)
}
