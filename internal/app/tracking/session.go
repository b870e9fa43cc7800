// Package tracking drives the sensor-fed session state machine that turns
// raw location fixes into journal waypoints.
//
// The session is Idle until started for a trip and user, Tracking while
// fixes arrive, and Paused after five minutes without a qualifying fix.
// Paused downgrades the sensor to its cheap significant-change mode; any
// valid fix resumes Tracking. Waypoint writes go to the store when it is
// reachable and into the pending queue when it is not.
package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fernweh-app/journal-core/internal/app/pending"
	"github.com/fernweh-app/journal-core/internal/app/reconcile"
	"github.com/fernweh-app/journal-core/internal/domain"
	clockport "github.com/fernweh-app/journal-core/internal/ports/out/clock"
	"github.com/fernweh-app/journal-core/internal/ports/out/memoryrepo"
	"github.com/fernweh-app/journal-core/internal/ports/out/power"
	"github.com/fernweh-app/journal-core/internal/ports/out/sensor"
	"github.com/fernweh-app/journal-core/internal/ports/out/triprepo"
	"github.com/fernweh-app/journal-core/internal/ports/out/userrepo"
)

// State is the tracking session state. Idle is both initial and terminal.
type State string

const (
	StateIdle     State = "IDLE"
	StateTracking State = "TRACKING"
	StatePaused   State = "PAUSED"
)

var (
	// ErrAlreadyTracking is returned by Start while a session is live.
	ErrAlreadyTracking = errors.New("tracking session already active")

	// ErrEmptyTitle rejects manual waypoints with a blank title.
	ErrEmptyTitle = errors.New("waypoint title must be non-empty")

	// ErrInvalidCoordinate rejects manual waypoints whose explicit location
	// fails sanitization.
	ErrInvalidCoordinate = errors.New("invalid waypoint coordinate")
)

// Session is the location tracking state machine. It implements
// sensor.Handler and power.Listener; adapter callbacks are marshaled into it
// and must never block, so store writes triggered by fixes run on their own
// goroutine (fire-and-forget, logged).
type Session struct {
	policy   Policy
	src      sensor.Source
	battery  power.Monitor
	clk      clockport.Clock
	queue    *pending.Queue
	trips    triprepo.Repository
	users    userrepo.Repository
	memories memoryrepo.Repository
	log      zerolog.Logger

	newMemoryID func() domain.MemoryID

	mu         sync.Mutex
	state      State
	selected   Tier
	effective  Tier
	tripID     domain.TripID
	userID     domain.UserID
	lastLoc    *domain.Coordinate
	lastWPLoc  *domain.Coordinate
	lastWPAt   time.Time
	pauseTimer clockport.Timer
	authDenied bool
}

func NewSession(
	policy Policy,
	src sensor.Source,
	battery power.Monitor,
	clk clockport.Clock,
	queue *pending.Queue,
	trips triprepo.Repository,
	users userrepo.Repository,
	memories memoryrepo.Repository,
	log zerolog.Logger,
) *Session {
	s := &Session{
		policy:   policy,
		src:      src,
		battery:  battery,
		clk:      clk,
		queue:    queue,
		trips:    trips,
		users:    users,
		memories: memories,
		log:      log.With().Str("component", "tracking-session").Logger(),
		newMemoryID: func() domain.MemoryID {
			return domain.MemoryID(uuid.NewString())
		},
		state:     StateIdle,
		selected:  TierBalanced,
		effective: TierBalanced,
	}
	src.Subscribe(s)
	battery.Subscribe(s)
	return s
}

// SetNewMemoryIDForTest overrides memory ID generation for deterministic
// tests. It should not be used in production code.
func (s *Session) SetNewMemoryIDForTest(fn func() domain.MemoryID) {
	if fn != nil {
		s.newMemoryID = fn
	}
}

// Start validates the trip and user in the store, subscribes to the sensor
// at the effective accuracy tier and enters Tracking.
func (s *Session) Start(ctx context.Context, tripID domain.TripID, userID domain.UserID) error {
	if _, err := reconcile.Trip(ctx, s.trips, tripID); err != nil {
		return err
	}
	if _, err := reconcile.User(ctx, s.users, userID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrAlreadyTracking
	}
	s.state = StateTracking
	s.tripID = tripID
	s.userID = userID
	s.lastLoc = nil
	s.lastWPLoc = nil
	s.lastWPAt = s.clk.Now()
	s.authDenied = false
	s.effective = s.policy.EffectiveTier(s.selected, s.battery.State())
	s.src.StartUpdates(s.policy.ProfileFor(s.effective))
	s.pauseTimer = s.clk.AfterFunc(s.policy.PauseTimeout, s.pauseTimerFired)
	s.log.Info().
		Str("trip", string(tripID)).
		Str("user", string(userID)).
		Str("tier", string(s.effective)).
		Msg("tracking started")
	return nil
}

// Stop unsubscribes from the sensor, stops the pause timer, kicks off a
// queue flush and returns to Idle. It is safe to call from any state,
// including Idle, and returns immediately; an in-flight waypoint write
// completes or fails on its own.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	s.tripID = ""
	s.userID = ""
	s.src.Stop()
	if s.pauseTimer != nil {
		s.pauseTimer.Stop()
		s.pauseTimer = nil
	}
	s.mu.Unlock()

	s.log.Info().Msg("tracking stopped")
	go func() {
		if _, err := s.queue.Flush(context.Background()); err != nil {
			s.log.Warn().Err(err).Msg("queue flush on stop failed")
		}
	}()
}

// Retarget points a live session at another trip. Used by the activation
// manager when the active trip changes mid-session; a no-op when Idle.
func (s *Session) Retarget(tripID domain.TripID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle || s.tripID == tripID {
		return
	}
	s.tripID = tripID
	s.lastWPLoc = nil
	s.lastWPAt = s.clk.Now()
	s.log.Info().Str("trip", string(tripID)).Msg("tracking retargeted")
}

// SetTier records the user's accuracy selection and re-evaluates the
// effective tier immediately.
func (s *Session) SetTier(t Tier) error {
	if !ValidTier(t) {
		return errors.New("unknown accuracy tier: " + string(t))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = t
	s.applyEffectiveTierLocked(s.battery.State())
	return nil
}

// SelectedTier returns the user's selection, untouched by battery overrides.
func (s *Session) SelectedTier() Tier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// EffectiveTier returns the tier actually driving the sensor.
func (s *Session) EffectiveTier() Tier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effective
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsTracking() bool {
	st := s.State()
	return st == StateTracking || st == StatePaused
}

func (s *Session) IsPaused() bool { return s.State() == StatePaused }

// CurrentLocation returns the last known sanitized location. The bool is
// false until the first valid fix of the process lifetime.
func (s *Session) CurrentLocation() (domain.Coordinate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastLoc == nil {
		return domain.Coordinate{}, false
	}
	return *s.lastLoc, true
}

// AuthorizationDenied reports whether the last session ended because sensor
// authorization was revoked.
func (s *Session) AuthorizationDenied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authDenied
}

// CurrentTripID returns the trip a live session targets.
func (s *Session) CurrentTripID() (domain.TripID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return "", false
	}
	return s.tripID, true
}

// CreateManualWaypoint records a waypoint regardless of the
// displacement/time gate. The title and any explicit location are validated
// first; with no explicit location the last known one is used. Without an
// active session or a known location the call is a logged no-op.
func (s *Session) CreateManualWaypoint(ctx context.Context, title string, content *string, loc *domain.Coordinate) error {
	title = domain.NormalizeTitle(title)
	if title == "" {
		return ErrEmptyTitle
	}

	var coord domain.Coordinate
	if loc != nil {
		c, valid := domain.SanitizeFix(loc.Latitude, loc.Longitude, nil, nil)
		if !valid {
			return ErrInvalidCoordinate
		}
		coord = c
	}

	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		s.log.Info().Str("title", title).Msg("manual waypoint dropped: no active session")
		return nil
	}
	if loc == nil {
		if s.lastLoc == nil {
			s.mu.Unlock()
			s.log.Info().Str("title", title).Msg("manual waypoint dropped: no known location")
			return nil
		}
		coord = *s.lastLoc
	}
	tripID, userID := s.tripID, s.userID
	ts := s.clk.Now()
	s.mu.Unlock()

	s.commitWaypoint(ctx, tripID, userID, title, content, coord, ts)
	return nil
}

// HandleFix implements sensor.Handler. Invalid fixes are dropped; valid
// ones reset the pause timer, resume a paused session, update the last
// known location and run the waypoint gate.
func (s *Session) HandleFix(f sensor.Fix) {
	age := s.clk.Now().Sub(f.Time)
	coord, valid := domain.SanitizeFix(f.Latitude, f.Longitude, f.AccuracyMeters, &age)
	if !valid {
		s.log.Debug().Float64("lat", f.Latitude).Float64("lon", f.Longitude).Msg("fix dropped by sanitizer")
		return
	}

	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	if s.pauseTimer != nil {
		s.pauseTimer.Reset(s.policy.PauseTimeout)
	}
	if s.state == StatePaused {
		s.state = StateTracking
		s.src.StartUpdates(s.policy.ProfileFor(s.effective))
		s.log.Info().Msg("tracking resumed")
	}
	s.lastLoc = &coord

	now := s.clk.Now()
	create := false
	if s.lastWPLoc == nil {
		// First fix of the session anchors the gate without creating a
		// waypoint.
		s.lastWPLoc = &coord
		s.lastWPAt = now
	} else {
		d := displacementMeters(*s.lastWPLoc, coord)
		elapsed := now.Sub(s.lastWPAt)
		if d >= s.policy.WaypointMinMeters || elapsed >= s.policy.WaypointMaxInterval {
			create = true
			s.lastWPLoc = &coord
			s.lastWPAt = now
		}
	}
	tripID, userID := s.tripID, s.userID
	s.mu.Unlock()

	if create {
		// Off the sensor delivery goroutine; the callback must not block on
		// the store.
		go s.commitWaypoint(context.Background(), tripID, userID, "Waypoint", nil, coord, now)
	}
}

// HandleSensorError implements sensor.Handler. Transient sensor errors are
// logged and tracking continues.
func (s *Session) HandleSensorError(err error) {
	s.log.Warn().Err(err).Msg("sensor error ignored")
}

// HandleAuthorizationChange implements sensor.Handler. Denial stops the
// session and leaves a visible flag.
func (s *Session) HandleAuthorizationChange(st sensor.AuthorizationStatus) {
	if st != sensor.AuthorizationDenied {
		return
	}
	s.mu.Lock()
	s.authDenied = true
	s.mu.Unlock()
	s.log.Warn().Msg("sensor authorization denied; stopping session")
	s.Stop()
}

// HandlePowerChange implements power.Listener. The effective tier is
// re-evaluated on every battery level or charging change; the user's
// selection is never altered.
func (s *Session) HandlePowerChange(ps power.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyEffectiveTierLocked(ps)
}

func (s *Session) applyEffectiveTierLocked(ps power.State) {
	next := s.policy.EffectiveTier(s.selected, ps)
	if next == s.effective {
		return
	}
	prev := s.effective
	s.effective = next
	if s.state == StateTracking {
		s.src.StartUpdates(s.policy.ProfileFor(next))
	}
	s.log.Info().
		Str("from", string(prev)).
		Str("to", string(next)).
		Str("selected", string(s.selected)).
		Msg("effective accuracy tier changed")
}

func (s *Session) commitWaypoint(
	ctx context.Context,
	tripID domain.TripID,
	userID domain.UserID,
	title string,
	content *string,
	coord domain.Coordinate,
	ts time.Time,
) {
	m := memoryrepo.Memory{
		ID:        s.newMemoryID(),
		TripID:    tripID,
		Author:    userID,
		Title:     title,
		Content:   content,
		Latitude:  coord.Latitude,
		Longitude: coord.Longitude,
		Timestamp: ts,
		CreatedAt: s.clk.Now(),
	}
	err := s.memories.Create(ctx, m)
	if err == nil {
		s.log.Debug().Str("memory", string(m.ID)).Str("title", title).Msg("waypoint committed")
		return
	}

	// Unreachable store is the expected case here, not a failure mode: the
	// record buffers and promotes on the next flush.
	rec := pending.Record{
		OwnerTripID: string(tripID),
		OwnerUserID: string(userID),
		Title:       title,
		Content:     content,
		Latitude:    coord.Latitude,
		Longitude:   coord.Longitude,
		Timestamp:   ts,
	}
	if qerr := s.queue.Enqueue(ctx, rec); qerr != nil {
		s.log.Error().Err(qerr).Str("title", title).Msg("waypoint lost: store and queue both failed")
		return
	}
	s.log.Info().Err(err).Str("title", title).Int("queued", s.queue.Size()).Msg("waypoint buffered for later flush")
}

func (s *Session) pauseTimerFired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateTracking {
		return
	}
	s.state = StatePaused
	s.src.StartSignificantChanges()
	s.log.Info().Dur("timeout", s.policy.PauseTimeout).Msg("no qualifying fix; session paused")
}
