package memoryrepo

import "errors"

var (
	// ErrNotFound indicates the requested memory does not exist.
	ErrNotFound = errors.New("memory not found")

	// ErrAlreadyExists indicates a memory already exists with the provided ID.
	ErrAlreadyExists = errors.New("memory already exists")

	// ErrUnavailable indicates the store cannot be reached right now.
	// The tracking session routes writes into the pending queue on this
	// (or any other) create failure.
	ErrUnavailable = errors.New("memory store unavailable")
)
