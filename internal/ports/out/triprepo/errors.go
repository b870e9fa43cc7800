package triprepo

import "errors"

var (
	// ErrNotFound indicates the requested trip does not exist and never did.
	ErrNotFound = errors.New("trip not found")

	// ErrDeleted indicates the trip existed but has been deleted.
	ErrDeleted = errors.New("trip deleted")

	// ErrAlreadyExists indicates a trip already exists with the provided ID.
	ErrAlreadyExists = errors.New("trip already exists")

	// ErrUnavailable indicates the store cannot be reached right now.
	ErrUnavailable = errors.New("trip store unavailable")
)
