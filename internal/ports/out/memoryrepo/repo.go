package memoryrepo

import (
	"context"
	"time"

	"github.com/fernweh-app/journal-core/internal/domain"
)

// Photo is the persistence shape for an image attached to a memory.
type Photo struct {
	ID         domain.PhotoID
	Filename   string
	LocalPath  string
	RemotePath *string
}

// Memory is the persistence shape used by the memory repository.
type Memory struct {
	ID     domain.MemoryID
	TripID domain.TripID
	Author domain.UserID

	Title   string
	Content *string

	Latitude  float64
	Longitude float64

	Timestamp time.Time

	Photos []Photo

	CreatedAt time.Time
}

// Repository provides access to persisted memories.
type Repository interface {
	Create(ctx context.Context, m Memory) error

	GetByID(ctx context.Context, id domain.MemoryID) (Memory, error)

	// ListByTrip returns the trip's memories ordered by Timestamp ascending,
	// then ID.
	ListByTrip(ctx context.Context, trip domain.TripID) ([]Memory, error)

	AttachPhoto(ctx context.Context, id domain.MemoryID, p Photo) error

	// DeleteByTrip removes every memory belonging to the trip. Used when a
	// trip is deleted.
	DeleteByTrip(ctx context.Context, trip domain.TripID) error
}
