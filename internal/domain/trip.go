package domain

import "time"

// TripSummary is the domain read model for a trip.
//
// Invariant: for a given owner, at most one trip has IsActive=true at any
// committed instant. The triprepo port enforces this through
// ActivateExclusive; everything else in the system treats it as given.
type TripSummary struct {
	ID    TripID
	Title string

	Description *string

	StartDate time.Time
	// EndDate is nil while the trip is open-ended.
	EndDate *time.Time

	IsActive bool

	OwnerID        UserID
	ParticipantIDs []UserID
}
