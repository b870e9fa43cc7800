package domain

import "time"

// Memory is a timestamped, geolocated note, optionally with photos.
// Memories are created automatically by the tracking session (waypoints)
// or explicitly by the user.
type Memory struct {
	ID     MemoryID
	TripID TripID
	Author UserID

	Title   string
	Content *string

	Latitude  float64
	Longitude float64

	Timestamp time.Time

	Photos []Photo
}

// Photo is an image attached to a memory. RemotePath is nil until the photo
// has been uploaded somewhere; sync is out of scope for this core.
type Photo struct {
	ID         PhotoID
	Filename   string
	LocalPath  string
	RemotePath *string
}
