// Package httpapi exposes the journal core over HTTP. Handlers stay thin:
// decode, call the service, map the result. All policy lives in the app
// layer.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/fernweh-app/journal-core/internal/app/pending"
	"github.com/fernweh-app/journal-core/internal/app/tracking"
	"github.com/fernweh-app/journal-core/internal/app/trips"
	"github.com/fernweh-app/journal-core/internal/app/users"
	"github.com/fernweh-app/journal-core/internal/domain"
)

type Server struct {
	users   *users.Service
	trips   *trips.Service
	session *tracking.Session
	queue   *pending.Queue
	log     zerolog.Logger
}

func NewServer(
	usersSvc *users.Service,
	tripsSvc *trips.Service,
	session *tracking.Session,
	queue *pending.Queue,
	log zerolog.Logger,
) *Server {
	return &Server{
		users:   usersSvc,
		trips:   tripsSvc,
		session: session,
		queue:   queue,
		log:     log.With().Str("component", "httpapi").Logger(),
	}
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.users.CreateUser(r.Context(), users.CreateUserInput{DisplayName: req.DisplayName})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	us, err := s.users.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]userResponse, 0, len(us))
	for _, u := range us {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.GetUser(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (s *Server) handleRenameUser(w http.ResponseWriter, r *http.Request) {
	var req renameUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.users.RenameUser(r.Context(), userID(r), req.DisplayName)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (s *Server) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.DeactivateUser(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.users.DeleteUser(r.Context(), userID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	var req createTripRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := s.trips.CreateTrip(r.Context(), userID(r), trips.CreateTripInput{
		Title:       req.Title,
		Description: req.Description,
		StartDate:   req.StartDate,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTripResponse(t))
}

func (s *Server) handleListTrips(w http.ResponseWriter, r *http.Request) {
	ts, err := s.trips.ListTrips(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]tripResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTripResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	t, err := s.trips.GetTrip(r.Context(), userID(r), tripID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTripResponse(t))
}

func (s *Server) handleUpdateTrip(w http.ResponseWriter, r *http.Request) {
	var req updateTripRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := s.trips.UpdateTrip(r.Context(), userID(r), tripID(r), req.toInput())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTripResponse(t))
}

func (s *Server) handleDeleteTrip(w http.ResponseWriter, r *http.Request) {
	if err := s.trips.DeleteTrip(r.Context(), userID(r), tripID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivateTrip(w http.ResponseWriter, r *http.Request) {
	t, err := s.trips.Activate(r.Context(), userID(r), tripID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTripResponse(t))
}

func (s *Server) handleCurrentTrip(w http.ResponseWriter, r *http.Request) {
	t, ok, err := s.trips.CurrentTrip(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, http.StatusNotFound, "NO_ACTIVE_TRIP", "no active trip", nil)
		return
	}
	writeJSON(w, http.StatusOK, toTripResponse(t))
}

func (s *Server) handleEndCurrentTrip(w http.ResponseWriter, r *http.Request) {
	t, err := s.trips.EndCurrentTrip(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTripResponse(t))
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	ms, err := s.trips.ListMemories(r.Context(), userID(r), tripID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]memoryResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, toMemoryResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAttachPhoto(w http.ResponseWriter, r *http.Request) {
	var req attachPhotoRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	memoryID := domain.MemoryID(chi.URLParam(r, "memoryID"))
	m, err := s.trips.AttachPhoto(r.Context(), userID(r), tripID(r), memoryID, req.Filename, req.LocalPath)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemoryResponse(m))
}

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := s.trips.AddParticipant(r.Context(), userID(r), tripID(r), domain.UserID(req.UserID))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTripResponse(t))
}

func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	participant := domain.UserID(chi.URLParam(r, "participantID"))
	t, err := s.trips.RemoveParticipant(r.Context(), userID(r), tripID(r), participant)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTripResponse(t))
}

func (s *Server) handleStartTracking(w http.ResponseWriter, r *http.Request) {
	var req startTrackingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := s.session.Start(r.Context(), domain.TripID(req.TripID), domain.UserID(req.UserID))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.writeTrackingStatus(w)
}

func (s *Server) handleStopTracking(w http.ResponseWriter, r *http.Request) {
	s.session.Stop()
	s.writeTrackingStatus(w)
}

func (s *Server) handleSetTier(w http.ResponseWriter, r *http.Request) {
	var req tierRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.session.SetTier(tracking.Tier(req.Tier)); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), map[string]any{"tier": req.Tier})
		return
	}
	s.writeTrackingStatus(w)
}

// handleCreateWaypoint records a manual waypoint. 202 rather than 201: with
// the store unreachable the write is buffered, not yet committed.
func (s *Server) handleCreateWaypoint(w http.ResponseWriter, r *http.Request) {
	var req waypointRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var loc *domain.Coordinate
	if req.Location != nil {
		loc = &domain.Coordinate{Latitude: req.Location.Latitude, Longitude: req.Location.Longitude}
	}
	if err := s.session.CreateManualWaypoint(r.Context(), req.Title, req.Content, loc); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTrackingStatus(w http.ResponseWriter, r *http.Request) {
	s.writeTrackingStatus(w)
}

func (s *Server) handleFlushQueue(w http.ResponseWriter, r *http.Request) {
	promoted, err := s.queue.Flush(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flushResponse{Promoted: promoted, Remaining: s.queue.Size()})
}

func (s *Server) writeTrackingStatus(w http.ResponseWriter) {
	resp := trackingStatusResponse{
		State:               string(s.session.State()),
		SelectedTier:        string(s.session.SelectedTier()),
		EffectiveTier:       string(s.session.EffectiveTier()),
		AuthorizationDenied: s.session.AuthorizationDenied(),
		QueueSize:           s.queue.Size(),
	}
	if id, ok := s.session.CurrentTripID(); ok {
		v := string(id)
		resp.TripID = &v
	}
	if loc, ok := s.session.CurrentLocation(); ok {
		resp.Location = &coordinateBody{Latitude: loc.Latitude, Longitude: loc.Longitude}
	}
	writeJSON(w, http.StatusOK, resp)
}

func userID(r *http.Request) domain.UserID {
	return domain.UserID(chi.URLParam(r, "userID"))
}

func tripID(r *http.Request) domain.TripID {
	return domain.TripID(chi.URLParam(r, "tripID"))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON", nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
