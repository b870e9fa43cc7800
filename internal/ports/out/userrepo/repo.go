package userrepo

import (
	"context"
	"time"

	"github.com/fernweh-app/journal-core/internal/domain"
)

// User is the persistence shape used by the user repository.
// It is not an API DTO.
type User struct {
	ID domain.UserID

	DisplayName string
	IsActive    bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository provides access to persisted users.
//
// Deletion is soft: implementations keep a tombstone so that a later
// GetByID can distinguish "deleted" from "never existed". The reconciler
// depends on that distinction.
type Repository interface {
	Create(ctx context.Context, u User) error
	Save(ctx context.Context, u User) error

	GetByID(ctx context.Context, id domain.UserID) (User, error)

	// List returns all non-deleted users ordered by DisplayName ascending,
	// then ID, to keep behavior deterministic.
	List(ctx context.Context) ([]User, error)

	Delete(ctx context.Context, id domain.UserID) error
}
