package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateEmail indicates a uniqueness violation on the user email.
	ErrDuplicateEmail = errors.New("repository: duplicate email")
)
