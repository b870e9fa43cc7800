package domain

import "time"

// User is the domain representation of a journal user.
// A user owns zero-or-more trips and authors memories.
type User struct {
	ID UserID

	DisplayName string
	IsActive    bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
