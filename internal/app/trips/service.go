// Package trips is the trip lifecycle service and activation manager. It
// owns the "one active trip per owner" invariant: every activation goes
// through the repository's exclusive-activation transaction, wrapped in the
// bounded save retry, and a live tracking session is retargeted or stopped
// to follow the active trip.
package trips

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fernweh-app/journal-core/internal/app/reconcile"
	"github.com/fernweh-app/journal-core/internal/domain"
	clockport "github.com/fernweh-app/journal-core/internal/ports/out/clock"
	"github.com/fernweh-app/journal-core/internal/ports/out/memoryrepo"
	"github.com/fernweh-app/journal-core/internal/ports/out/triprepo"
	"github.com/fernweh-app/journal-core/internal/ports/out/userrepo"
)

// Tracker is the slice of the tracking session the activation manager needs.
// A nil Tracker is allowed; trip lifecycle then runs without session
// side effects.
type Tracker interface {
	IsTracking() bool
	Retarget(tripID domain.TripID)
	Stop()
}

type Service struct {
	trips    triprepo.Repository
	users    userrepo.Repository
	memories memoryrepo.Repository
	tracker  Tracker
	clk      clockport.Clock
	retry    reconcile.RetryConfig
	log      zerolog.Logger

	newTripID func() domain.TripID

	// current caches the active trip per owner. The store stays the source
	// of truth; CurrentTrip re-resolves before answering.
	mu      sync.Mutex
	current map[domain.UserID]domain.TripID
}

func NewService(
	tripsRepo triprepo.Repository,
	usersRepo userrepo.Repository,
	memoriesRepo memoryrepo.Repository,
	tracker Tracker,
	clk clockport.Clock,
	log zerolog.Logger,
) *Service {
	return &Service{
		trips:    tripsRepo,
		users:    usersRepo,
		memories: memoriesRepo,
		tracker:  tracker,
		clk:      clk,
		retry:    reconcile.DefaultRetryConfig(),
		log:      log.With().Str("component", "trips-service").Logger(),
		newTripID: func() domain.TripID {
			return domain.TripID(uuid.NewString())
		},
		current: make(map[domain.UserID]domain.TripID),
	}
}

// SetNewTripIDForTest overrides trip ID generation for deterministic tests.
// It should not be used in production code.
func (s *Service) SetNewTripIDForTest(fn func() domain.TripID) {
	if fn != nil {
		s.newTripID = fn
	}
}

// SetRetryConfigForTest overrides the save-retry bounds so tests do not sit
// through real delays.
func (s *Service) SetRetryConfigForTest(cfg reconcile.RetryConfig) {
	s.retry = cfg
}

func (s *Service) CreateTrip(ctx context.Context, owner domain.UserID, in CreateTripInput) (domain.TripSummary, error) {
	if _, err := reconcile.User(ctx, s.users, owner); err != nil {
		if _, ok := reconcile.IsStale(err); ok {
			return domain.TripSummary{}, &Error{Status: 422, Code: "VALIDATION_ERROR", Message: "invalid owner", Details: map[string]any{"ownerId": "owner does not exist"}}
		}
		return domain.TripSummary{}, err
	}

	title := domain.NormalizeTitle(in.Title)
	if title == "" {
		return domain.TripSummary{}, &Error{Status: 422, Code: "VALIDATION_ERROR", Message: "invalid title", Details: map[string]any{"title": "must be non-empty"}}
	}

	now := s.clk.Now()
	t := triprepo.Trip{
		ID:          s.newTripID(),
		Title:       title,
		Description: cloneStringPtr(in.Description),
		StartDate:   in.StartDate.UTC(),
		// Trips are created inactive; activation is a separate, explicit step.
		IsActive:  false,
		OwnerID:   owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.trips.Create(ctx, t); err != nil {
		if errors.Is(err, triprepo.ErrAlreadyExists) {
			return domain.TripSummary{}, &Error{Status: 409, Code: "TRIP_ID_CONFLICT", Message: "trip id conflict"}
		}
		return domain.TripSummary{}, err
	}

	s.log.Info().Str("trip", string(t.ID)).Str("owner", string(owner)).Msg("trip created")
	return toSummary(t), nil
}

func (s *Service) GetTrip(ctx context.Context, owner domain.UserID, id domain.TripID) (domain.TripSummary, error) {
	t, err := s.ownedTrip(ctx, owner, id)
	if err != nil {
		return domain.TripSummary{}, err
	}
	return toSummary(t), nil
}

func (s *Service) ListTrips(ctx context.Context, owner domain.UserID) ([]domain.TripSummary, error) {
	ts, err := s.trips.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]domain.TripSummary, 0, len(ts))
	for _, t := range ts {
		out = append(out, toSummary(t))
	}
	return out, nil
}

func (s *Service) ListMemories(ctx context.Context, owner domain.UserID, id domain.TripID) ([]domain.Memory, error) {
	if _, err := s.ownedTrip(ctx, owner, id); err != nil {
		return nil, err
	}
	ms, err := s.memories.ListByTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Memory, 0, len(ms))
	for _, m := range ms {
		out = append(out, toDomainMemory(m))
	}
	return out, nil
}

func (s *Service) UpdateTrip(ctx context.Context, owner domain.UserID, id domain.TripID, in UpdateTripInput) (domain.TripSummary, error) {
	t, err := s.ownedTrip(ctx, owner, id)
	if err != nil {
		return domain.TripSummary{}, err
	}

	if in.Title.IsSpecified() {
		if in.Title.IsNull() {
			return domain.TripSummary{}, &Error{Status: 422, Code: "VALIDATION_ERROR", Message: "invalid title", Details: map[string]any{"title": "cannot be null"}}
		}
		title := domain.NormalizeTitle(in.Title.Value())
		if title == "" {
			return domain.TripSummary{}, &Error{Status: 422, Code: "VALIDATION_ERROR", Message: "invalid title", Details: map[string]any{"title": "must be non-empty"}}
		}
		t.Title = title
	}
	if in.Description.IsSpecified() {
		if in.Description.IsNull() {
			t.Description = nil
		} else {
			v := in.Description.Value()
			t.Description = &v
		}
	}
	if in.StartDate.IsSpecified() {
		if in.StartDate.IsNull() {
			return domain.TripSummary{}, &Error{Status: 422, Code: "VALIDATION_ERROR", Message: "invalid startDate", Details: map[string]any{"startDate": "cannot be null"}}
		}
		t.StartDate = in.StartDate.Value().UTC()
	}
	if in.EndDate.IsSpecified() {
		if in.EndDate.IsNull() {
			t.EndDate = nil
		} else {
			v := in.EndDate.Value().UTC()
			t.EndDate = &v
		}
	}
	if t.EndDate != nil && t.EndDate.Before(t.StartDate) {
		return domain.TripSummary{}, &Error{Status: 422, Code: "VALIDATION_ERROR", Message: "invalid date range", Details: map[string]any{"endDate": "must be on or after startDate"}}
	}

	t.UpdatedAt = s.clk.Now()
	if err := s.saveWithRetry(ctx, t); err != nil {
		return domain.TripSummary{}, err
	}
	return toSummary(t), nil
}

// Activate makes the trip the owner's single active trip. Sibling
// deactivation and target activation commit in one repository transaction;
// on success the cached active pointer moves and a live tracking session is
// retargeted at the new trip.
func (s *Service) Activate(ctx context.Context, owner domain.UserID, id domain.TripID) (domain.TripSummary, error) {
	if _, err := s.ownedTrip(ctx, owner, id); err != nil {
		return domain.TripSummary{}, err
	}

	err := reconcile.Retry(ctx, s.retry, func(ctx context.Context) error {
		// Re-validate on every attempt; the trip may have been deleted
		// between tries.
		if _, err := reconcile.Trip(ctx, s.trips, id); err != nil {
			return err
		}
		return s.trips.ActivateExclusive(ctx, owner, id)
	})
	if err != nil {
		if se, ok := reconcile.IsStale(err); ok {
			return domain.TripSummary{}, staleToError(se)
		}
		s.log.Error().Err(err).Str("trip", string(id)).Msg("activation failed; active trip unchanged")
		return domain.TripSummary{}, &Error{Status: 503, Code: "SAVE_FAILED", Message: "could not persist activation"}
	}

	s.mu.Lock()
	s.current[owner] = id
	s.mu.Unlock()

	if s.tracker != nil && s.tracker.IsTracking() {
		s.tracker.Retarget(id)
	}
	s.log.Info().Str("trip", string(id)).Str("owner", string(owner)).Msg("trip activated")

	t, err := reconcile.Trip(ctx, s.trips, id)
	if err != nil {
		return domain.TripSummary{}, err
	}
	return toSummary(t), nil
}

// CurrentTrip returns the owner's active trip. The cached pointer is
// re-resolved against the store first; a stale pointer is cleared, then the
// store itself is consulted so a pointer lost to a restart is re-derived.
func (s *Service) CurrentTrip(ctx context.Context, owner domain.UserID) (domain.TripSummary, bool, error) {
	s.mu.Lock()
	id, ok := s.current[owner]
	s.mu.Unlock()

	if ok {
		t, err := reconcile.Trip(ctx, s.trips, id)
		switch {
		case err == nil && t.IsActive && t.OwnerID == owner:
			return toSummary(t), true, nil
		case err != nil:
			if _, stale := reconcile.IsStale(err); !stale {
				return domain.TripSummary{}, false, err
			}
		}
		// Pointer no longer matches a live active trip.
		s.mu.Lock()
		delete(s.current, owner)
		s.mu.Unlock()
	}

	ts, err := s.trips.ListByOwner(ctx, owner)
	if err != nil {
		return domain.TripSummary{}, false, err
	}
	for _, t := range ts {
		if t.IsActive {
			s.mu.Lock()
			s.current[owner] = t.ID
			s.mu.Unlock()
			return toSummary(t), true, nil
		}
	}
	return domain.TripSummary{}, false, nil
}

// EndCurrentTrip closes the owner's active trip: end date set, IsActive
// cleared, tracking stopped. No sibling is auto-activated; ending a trip is
// an explicit "done traveling", not a switch.
func (s *Service) EndCurrentTrip(ctx context.Context, owner domain.UserID) (domain.TripSummary, error) {
	cur, ok, err := s.CurrentTrip(ctx, owner)
	if err != nil {
		return domain.TripSummary{}, err
	}
	if !ok {
		return domain.TripSummary{}, &Error{Status: 409, Code: "NO_ACTIVE_TRIP", Message: "no active trip to end"}
	}

	now := s.clk.Now()
	err = reconcile.Retry(ctx, s.retry, func(ctx context.Context) error {
		t, err := reconcile.Trip(ctx, s.trips, cur.ID)
		if err != nil {
			return err
		}
		t.IsActive = false
		t.EndDate = &now
		t.UpdatedAt = now
		return s.trips.Save(ctx, t)
	})
	if err != nil {
		if se, ok := reconcile.IsStale(err); ok {
			return domain.TripSummary{}, staleToError(se)
		}
		s.log.Error().Err(err).Str("trip", string(cur.ID)).Msg("ending trip failed; trip stays active")
		return domain.TripSummary{}, &Error{Status: 503, Code: "SAVE_FAILED", Message: "could not persist trip end"}
	}

	s.mu.Lock()
	delete(s.current, owner)
	s.mu.Unlock()
	if s.tracker != nil {
		s.tracker.Stop()
	}
	s.log.Info().Str("trip", string(cur.ID)).Msg("trip ended")

	t, err := reconcile.Trip(ctx, s.trips, cur.ID)
	if err != nil {
		return domain.TripSummary{}, err
	}
	return toSummary(t), nil
}

// DeleteTrip removes the trip and its memories. When the deleted trip was
// the active one, the cached pointer is cleared before the delete commits so
// no reader ever sees a pointer to a tombstone; afterwards the first
// remaining sibling is auto-activated, or tracking stops when none is left.
func (s *Service) DeleteTrip(ctx context.Context, owner domain.UserID, id domain.TripID) error {
	t, err := s.ownedTrip(ctx, owner, id)
	if err != nil {
		return err
	}
	wasActive := t.IsActive

	if wasActive {
		s.mu.Lock()
		delete(s.current, owner)
		s.mu.Unlock()
	}

	err = reconcile.Retry(ctx, s.retry, func(ctx context.Context) error {
		err := s.trips.Delete(ctx, id)
		if errors.Is(err, triprepo.ErrDeleted) {
			// A prior attempt committed.
			return nil
		}
		return err
	})
	if err != nil {
		s.log.Error().Err(err).Str("trip", string(id)).Msg("trip delete failed")
		return &Error{Status: 503, Code: "SAVE_FAILED", Message: "could not delete trip"}
	}

	if err := s.memories.DeleteByTrip(ctx, id); err != nil {
		// The trip tombstone already hides them; removal is cleanup.
		s.log.Warn().Err(err).Str("trip", string(id)).Msg("deleting trip memories failed")
	}
	s.log.Info().Str("trip", string(id)).Msg("trip deleted")

	if !wasActive {
		return nil
	}
	return s.activateSuccessor(ctx, owner)
}

// AttachPhoto adds a photo record to one of the trip's memories and returns
// the updated memory. The photo itself lives on the device filesystem; only
// the record is persisted here.
func (s *Service) AttachPhoto(ctx context.Context, owner domain.UserID, id domain.TripID, memoryID domain.MemoryID, filename, localPath string) (domain.Memory, error) {
	if _, err := s.ownedTrip(ctx, owner, id); err != nil {
		return domain.Memory{}, err
	}
	if filename == "" || localPath == "" {
		return domain.Memory{}, &Error{Status: 422, Code: "VALIDATION_ERROR", Message: "invalid photo", Details: map[string]any{"filename": "filename and localPath must be non-empty"}}
	}

	m, err := s.memories.GetByID(ctx, memoryID)
	if err != nil {
		if errors.Is(err, memoryrepo.ErrNotFound) {
			return domain.Memory{}, &Error{Status: 404, Code: "MEMORY_NOT_FOUND", Message: "memory not found"}
		}
		return domain.Memory{}, err
	}
	if m.TripID != id {
		return domain.Memory{}, &Error{Status: 404, Code: "MEMORY_NOT_FOUND", Message: "memory not found"}
	}

	p := memoryrepo.Photo{
		ID:        domain.PhotoID(uuid.NewString()),
		Filename:  filename,
		LocalPath: localPath,
	}
	if err := s.memories.AttachPhoto(ctx, memoryID, p); err != nil {
		if errors.Is(err, memoryrepo.ErrNotFound) {
			return domain.Memory{}, &Error{Status: 404, Code: "MEMORY_NOT_FOUND", Message: "memory not found"}
		}
		s.log.Error().Err(err).Str("memory", string(memoryID)).Msg("photo attach failed")
		return domain.Memory{}, &Error{Status: 503, Code: "SAVE_FAILED", Message: "could not persist photo"}
	}

	m, err = s.memories.GetByID(ctx, memoryID)
	if err != nil {
		return domain.Memory{}, err
	}
	return toDomainMemory(m), nil
}

// AddParticipant adds a user to the trip's participant set. Idempotent.
func (s *Service) AddParticipant(ctx context.Context, owner domain.UserID, id domain.TripID, participant domain.UserID) (domain.TripSummary, error) {
	t, err := s.ownedTrip(ctx, owner, id)
	if err != nil {
		return domain.TripSummary{}, err
	}
	if _, err := reconcile.User(ctx, s.users, participant); err != nil {
		if _, ok := reconcile.IsStale(err); ok {
			return domain.TripSummary{}, &Error{Status: 422, Code: "VALIDATION_ERROR", Message: "invalid participant", Details: map[string]any{"userId": "user not found"}}
		}
		return domain.TripSummary{}, err
	}

	if !containsUser(t.ParticipantIDs, participant) {
		t.ParticipantIDs = append(t.ParticipantIDs, participant)
		t.UpdatedAt = s.clk.Now()
		if err := s.saveWithRetry(ctx, t); err != nil {
			return domain.TripSummary{}, err
		}
	}
	return toSummary(t), nil
}

// RemoveParticipant removes a user from the trip's participant set.
// Removing a user who is not a participant is an idempotent no-op.
func (s *Service) RemoveParticipant(ctx context.Context, owner domain.UserID, id domain.TripID, participant domain.UserID) (domain.TripSummary, error) {
	t, err := s.ownedTrip(ctx, owner, id)
	if err != nil {
		return domain.TripSummary{}, err
	}
	if !containsUser(t.ParticipantIDs, participant) {
		return toSummary(t), nil
	}
	out := make([]domain.UserID, 0, len(t.ParticipantIDs)-1)
	for _, p := range t.ParticipantIDs {
		if p != participant {
			out = append(out, p)
		}
	}
	t.ParticipantIDs = out
	t.UpdatedAt = s.clk.Now()
	if err := s.saveWithRetry(ctx, t); err != nil {
		return domain.TripSummary{}, err
	}
	return toSummary(t), nil
}

// activateSuccessor promotes the first remaining sibling after the active
// trip was deleted, or stops tracking when the owner has no trips left.
func (s *Service) activateSuccessor(ctx context.Context, owner domain.UserID) error {
	ts, err := s.trips.ListByOwner(ctx, owner)
	if err != nil {
		return err
	}
	if len(ts) == 0 {
		if s.tracker != nil {
			s.tracker.Stop()
		}
		s.log.Info().Str("owner", string(owner)).Msg("no trips left; tracking stopped")
		return nil
	}

	next := ts[0].ID
	if _, err := s.Activate(ctx, owner, next); err != nil {
		s.log.Warn().Err(err).Str("trip", string(next)).Msg("auto-activation of successor failed")
		if s.tracker != nil {
			s.tracker.Stop()
		}
		return err
	}
	return nil
}

// ownedTrip resolves the trip and enforces ownership. Trips of other owners
// come back as 404, not 403; this core has no cross-owner visibility.
func (s *Service) ownedTrip(ctx context.Context, owner domain.UserID, id domain.TripID) (triprepo.Trip, error) {
	t, err := reconcile.Trip(ctx, s.trips, id)
	if err != nil {
		if se, ok := reconcile.IsStale(err); ok {
			return triprepo.Trip{}, staleToError(se)
		}
		return triprepo.Trip{}, err
	}
	if t.OwnerID != owner {
		return triprepo.Trip{}, &Error{Status: 404, Code: "TRIP_NOT_FOUND", Message: "trip not found"}
	}
	return t, nil
}

func (s *Service) saveWithRetry(ctx context.Context, t triprepo.Trip) error {
	err := reconcile.Retry(ctx, s.retry, func(ctx context.Context) error {
		return s.trips.Save(ctx, t)
	})
	if err == nil {
		return nil
	}
	if se, ok := reconcile.IsStale(err); ok {
		return staleToError(se)
	}
	s.log.Error().Err(err).Str("trip", string(t.ID)).Msg("trip save failed; visible state unchanged")
	return &Error{Status: 503, Code: "SAVE_FAILED", Message: "could not persist trip"}
}

func staleToError(se *reconcile.StaleError) *Error {
	if se.Reason == reconcile.StaleDeleted {
		return &Error{Status: 409, Code: "TRIP_DELETED", Message: "trip has been deleted", Details: map[string]any{"id": se.ID}}
	}
	return &Error{Status: 404, Code: "TRIP_NOT_FOUND", Message: "trip not found"}
}

func containsUser(ids []domain.UserID, target domain.UserID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

func toSummary(t triprepo.Trip) domain.TripSummary {
	return domain.TripSummary{
		ID:             t.ID,
		Title:          t.Title,
		Description:    cloneStringPtr(t.Description),
		StartDate:      t.StartDate,
		EndDate:        cloneTimePtr(t.EndDate),
		IsActive:       t.IsActive,
		OwnerID:        t.OwnerID,
		ParticipantIDs: append([]domain.UserID(nil), t.ParticipantIDs...),
	}
}

func toDomainMemory(m memoryrepo.Memory) domain.Memory {
	out := domain.Memory{
		ID:        m.ID,
		TripID:    m.TripID,
		Author:    m.Author,
		Title:     m.Title,
		Content:   cloneStringPtr(m.Content),
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
		Timestamp: m.Timestamp,
		Photos:    make([]domain.Photo, 0, len(m.Photos)),
	}
	for _, p := range m.Photos {
		out.Photos = append(out.Photos, domain.Photo{
			ID:         p.ID,
			Filename:   p.Filename,
			LocalPath:  p.LocalPath,
			RemotePath: cloneStringPtr(p.RemotePath),
		})
	}
	return out
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
