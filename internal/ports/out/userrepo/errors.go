package userrepo

import "errors"

var (
	// ErrNotFound indicates the requested user does not exist and never did.
	ErrNotFound = errors.New("user not found")

	// ErrDeleted indicates the user existed but has been deleted.
	ErrDeleted = errors.New("user deleted")

	// ErrAlreadyExists indicates a user already exists with the provided ID.
	ErrAlreadyExists = errors.New("user already exists")

	// ErrUnavailable indicates the store cannot be reached right now.
	// Writers treat this as a signal to buffer, not as a terminal failure.
	ErrUnavailable = errors.New("user store unavailable")
)
