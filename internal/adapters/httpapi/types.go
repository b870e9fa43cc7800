package httpapi

import (
	"time"

	"github.com/oapi-codegen/nullable"

	"github.com/fernweh-app/journal-core/internal/app/trips"
	"github.com/fernweh-app/journal-core/internal/domain"
)

type userResponse struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type tripResponse struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    *string    `json:"description,omitempty"`
	StartDate      time.Time  `json:"startDate"`
	EndDate        *time.Time `json:"endDate,omitempty"`
	IsActive       bool       `json:"isActive"`
	OwnerID        string     `json:"ownerId"`
	ParticipantIDs []string   `json:"participantIds"`
}

type photoResponse struct {
	ID         string  `json:"id"`
	Filename   string  `json:"filename"`
	LocalPath  string  `json:"localPath"`
	RemotePath *string `json:"remotePath,omitempty"`
}

type memoryResponse struct {
	ID        string          `json:"id"`
	TripID    string          `json:"tripId"`
	AuthorID  string          `json:"authorId"`
	Title     string          `json:"title"`
	Content   *string         `json:"content,omitempty"`
	Latitude  float64         `json:"lat"`
	Longitude float64         `json:"lon"`
	Timestamp time.Time       `json:"timestamp"`
	Photos    []photoResponse `json:"photos"`
}

type coordinateBody struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

type trackingStatusResponse struct {
	State               string          `json:"state"`
	SelectedTier        string          `json:"selectedTier"`
	EffectiveTier       string          `json:"effectiveTier"`
	TripID              *string         `json:"tripId,omitempty"`
	Location            *coordinateBody `json:"location,omitempty"`
	AuthorizationDenied bool            `json:"authorizationDenied"`
	QueueSize           int             `json:"queueSize"`
}

type flushResponse struct {
	Promoted  int `json:"promoted"`
	Remaining int `json:"remaining"`
}

type createUserRequest struct {
	DisplayName string `json:"displayName"`
}

type renameUserRequest struct {
	DisplayName string `json:"displayName"`
}

type createTripRequest struct {
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	StartDate   time.Time `json:"startDate"`
}

// updateTripRequest carries tri-state patch fields: an omitted key leaves the
// field alone, an explicit null clears it (where allowed) and a value sets it.
type updateTripRequest struct {
	Title       nullable.Nullable[string]    `json:"title,omitempty"`
	Description nullable.Nullable[string]    `json:"description,omitempty"`
	StartDate   nullable.Nullable[time.Time] `json:"startDate,omitempty"`
	EndDate     nullable.Nullable[time.Time] `json:"endDate,omitempty"`
}

type attachPhotoRequest struct {
	Filename  string `json:"filename"`
	LocalPath string `json:"localPath"`
}

type participantRequest struct {
	UserID string `json:"userId"`
}

type startTrackingRequest struct {
	TripID string `json:"tripId"`
	UserID string `json:"userId"`
}

type tierRequest struct {
	Tier string `json:"tier"`
}

type waypointRequest struct {
	Title    string          `json:"title"`
	Content  *string         `json:"content,omitempty"`
	Location *coordinateBody `json:"location,omitempty"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:          string(u.ID),
		DisplayName: u.DisplayName,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func toTripResponse(t domain.TripSummary) tripResponse {
	participants := make([]string, 0, len(t.ParticipantIDs))
	for _, p := range t.ParticipantIDs {
		participants = append(participants, string(p))
	}
	return tripResponse{
		ID:             string(t.ID),
		Title:          t.Title,
		Description:    t.Description,
		StartDate:      t.StartDate,
		EndDate:        t.EndDate,
		IsActive:       t.IsActive,
		OwnerID:        string(t.OwnerID),
		ParticipantIDs: participants,
	}
}

func toMemoryResponse(m domain.Memory) memoryResponse {
	photos := make([]photoResponse, 0, len(m.Photos))
	for _, p := range m.Photos {
		photos = append(photos, photoResponse{
			ID:         string(p.ID),
			Filename:   p.Filename,
			LocalPath:  p.LocalPath,
			RemotePath: p.RemotePath,
		})
	}
	return memoryResponse{
		ID:        string(m.ID),
		TripID:    string(m.TripID),
		AuthorID:  string(m.Author),
		Title:     m.Title,
		Content:   m.Content,
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
		Timestamp: m.Timestamp,
		Photos:    photos,
	}
}

func toOptional[T any](n nullable.Nullable[T]) trips.Optional[T] {
	if !n.IsSpecified() {
		return trips.Unspecified[T]()
	}
	if n.IsNull() {
		return trips.Null[T]()
	}
	return trips.Some(n.MustGet())
}

func (r updateTripRequest) toInput() trips.UpdateTripInput {
	return trips.UpdateTripInput{
		Title:       toOptional(r.Title),
		Description: toOptional(r.Description),
		StartDate:   toOptional(r.StartDate),
		EndDate:     toOptional(r.EndDate),
	}
}
