package domain

// UserID is an internal identifier for a user record.
type UserID string

// TripID is an internal identifier for a trip record.
type TripID string

// MemoryID is an internal identifier for a memory record.
type MemoryID string

// PhotoID is an internal identifier for a photo record.
type PhotoID string
