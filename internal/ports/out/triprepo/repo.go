package triprepo

import (
	"context"
	"time"

	"github.com/fernweh-app/journal-core/internal/domain"
)

// Trip is the persistence shape used by the trip repository.
// It is not an API DTO.
type Trip struct {
	ID domain.TripID

	Title       string
	Description *string

	StartDate time.Time
	// EndDate is nil while the trip is open-ended.
	EndDate *time.Time

	IsActive bool

	OwnerID        domain.UserID
	ParticipantIDs []domain.UserID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository provides access to persisted trips.
//
// ActivateExclusive is the one transactional operation: in a single commit
// it sets IsActive=false on every other trip of the same owner and
// IsActive=true on the given trip. After any successful call exactly one
// trip per owner is active. Implementations must fail the whole operation
// (leaving every row unchanged) when the target trip is missing or deleted.
type Repository interface {
	Create(ctx context.Context, t Trip) error
	Save(ctx context.Context, t Trip) error

	GetByID(ctx context.Context, id domain.TripID) (Trip, error)

	// ListByOwner returns the owner's non-deleted trips, active trip first,
	// then StartDate descending, then ID, to keep behavior deterministic.
	ListByOwner(ctx context.Context, owner domain.UserID) ([]Trip, error)

	ActivateExclusive(ctx context.Context, owner domain.UserID, id domain.TripID) error

	Delete(ctx context.Context, id domain.TripID) error
}
