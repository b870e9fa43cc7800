package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	memkv "github.com/fernweh-app/journal-core/internal/adapters/memory/kvstore"
	memmem "github.com/fernweh-app/journal-core/internal/adapters/memory/memoryrepo"
	memtrip "github.com/fernweh-app/journal-core/internal/adapters/memory/triprepo"
	memuser "github.com/fernweh-app/journal-core/internal/adapters/memory/userrepo"
	"github.com/fernweh-app/journal-core/internal/adapters/sim"
	"github.com/fernweh-app/journal-core/internal/app/pending"
	"github.com/fernweh-app/journal-core/internal/app/tracking"
	"github.com/fernweh-app/journal-core/internal/app/trips"
	"github.com/fernweh-app/journal-core/internal/app/users"
	"github.com/fernweh-app/journal-core/internal/platform/clock"
)

type fixture struct {
	router   http.Handler
	memories *memmem.Repo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := zerolog.Nop()
	clk := clock.NewManualClock(time.Unix(1_000_000, 0).UTC())

	usersRepo := memuser.NewRepo()
	tripsRepo := memtrip.NewRepo()
	memoriesRepo := memmem.NewRepo()

	queue, err := pending.NewQueue(memkv.NewStore(), "", tripsRepo, usersRepo, memoriesRepo, log)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	session := tracking.NewSession(
		tracking.DefaultPolicy(),
		sim.NewSensor(),
		sim.NewBattery(),
		clk,
		queue,
		tripsRepo,
		usersRepo,
		memoriesRepo,
		log,
	)
	usersSvc := users.NewService(usersRepo, clk)
	tripsSvc := trips.NewService(tripsRepo, usersRepo, memoriesRepo, session, clk, log)

	srv := NewServer(usersSvc, tripsSvc, session, queue, log)
	return &fixture{
		router:   NewRouter(srv),
		memories: memoriesRepo,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

func (f *fixture) createUser(t *testing.T, name string) userResponse {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/users", map[string]any{"displayName": name})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create user: status=%d body=%s", rr.Code, rr.Body.String())
	}
	return decode[userResponse](t, rr)
}

func (f *fixture) createTrip(t *testing.T, owner, title string) tripResponse {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/users/"+owner+"/trips", map[string]any{
		"title":     title,
		"startDate": "2026-08-01T00:00:00Z",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create trip: status=%d body=%s", rr.Code, rr.Body.String())
	}
	return decode[tripResponse](t, rr)
}

func TestUsersEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	u := f.createUser(t, "  Nora   Berg ")
	if u.DisplayName != "Nora Berg" {
		t.Fatalf("displayName=%q", u.DisplayName)
	}
	if !u.IsActive {
		t.Fatalf("new user must be active")
	}

	rr := f.do(t, http.MethodGet, "/users/"+u.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get user: status=%d", rr.Code)
	}

	rr = f.do(t, http.MethodPost, "/users", map[string]any{"displayName": "   "})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("blank name: status=%d", rr.Code)
	}
	er := decode[ErrorResponse](t, rr)
	if er.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("code=%q", er.Error.Code)
	}
	if rid, err := er.Error.RequestID.Get(); err != nil || rid == "" {
		t.Fatalf("requestId missing from error body: %s", rr.Body.String())
	}

	rr = f.do(t, http.MethodGet, "/users/ghost", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing user: status=%d", rr.Code)
	}
	if er := decode[ErrorResponse](t, rr); er.Error.Code != "USER_NOT_FOUND" {
		t.Fatalf("code=%q", er.Error.Code)
	}
}

func TestTripLifecycleEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	u := f.createUser(t, "Ida")
	a := f.createTrip(t, u.ID, "Alps")
	b := f.createTrip(t, u.ID, "Baltic Coast")
	if a.IsActive || b.IsActive {
		t.Fatalf("trips must be created inactive")
	}

	rr := f.do(t, http.MethodGet, "/users/"+u.ID+"/trips/current", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("current before activation: status=%d", rr.Code)
	}

	rr = f.do(t, http.MethodPost, "/users/"+u.ID+"/trips/"+b.ID+"/activate", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("activate: status=%d body=%s", rr.Code, rr.Body.String())
	}
	cur := decode[tripResponse](t, f.do(t, http.MethodGet, "/users/"+u.ID+"/trips/current", nil))
	if cur.ID != b.ID || !cur.IsActive {
		t.Fatalf("current=%+v", cur)
	}

	// Patch: set then null-clear the description, leave everything else alone.
	rr = f.do(t, http.MethodPatch, "/users/"+u.ID+"/trips/"+b.ID, map[string]any{"description": "two weeks by the sea"})
	if rr.Code != http.StatusOK {
		t.Fatalf("patch: status=%d body=%s", rr.Code, rr.Body.String())
	}
	patched := decode[tripResponse](t, rr)
	if patched.Description == nil || *patched.Description != "two weeks by the sea" {
		t.Fatalf("description=%v", patched.Description)
	}
	if patched.Title != "Baltic Coast" {
		t.Fatalf("title changed by unrelated patch: %q", patched.Title)
	}
	patched = decode[tripResponse](t, f.do(t, http.MethodPatch, "/users/"+u.ID+"/trips/"+b.ID, map[string]any{"description": nil}))
	if patched.Description != nil {
		t.Fatalf("null description must clear the field")
	}

	rr = f.do(t, http.MethodPatch, "/users/"+u.ID+"/trips/"+b.ID, map[string]any{"title": nil})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("null title: status=%d", rr.Code)
	}

	ended := decode[tripResponse](t, f.do(t, http.MethodPost, "/users/"+u.ID+"/trips/current/end", nil))
	if ended.IsActive || ended.EndDate == nil {
		t.Fatalf("ended=%+v", ended)
	}
	rr = f.do(t, http.MethodGet, "/users/"+u.ID+"/trips/current", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("current after end: status=%d", rr.Code)
	}
	rr = f.do(t, http.MethodPost, "/users/"+u.ID+"/trips/current/end", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("second end: status=%d", rr.Code)
	}

	// Trips of other owners resolve as not found, never as forbidden.
	other := f.createUser(t, "Sam")
	rr = f.do(t, http.MethodGet, "/users/"+other.ID+"/trips/"+a.ID, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("foreign trip: status=%d", rr.Code)
	}
}

func TestParticipantEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	owner := f.createUser(t, "Ida")
	friend := f.createUser(t, "Sam")
	trip := f.createTrip(t, owner.ID, "Alps")

	rr := f.do(t, http.MethodPost, "/users/"+owner.ID+"/trips/"+trip.ID+"/participants", map[string]any{"userId": friend.ID})
	if rr.Code != http.StatusOK {
		t.Fatalf("add participant: status=%d body=%s", rr.Code, rr.Body.String())
	}
	got := decode[tripResponse](t, rr)
	if len(got.ParticipantIDs) != 1 || got.ParticipantIDs[0] != friend.ID {
		t.Fatalf("participants=%v", got.ParticipantIDs)
	}

	rr = f.do(t, http.MethodPost, "/users/"+owner.ID+"/trips/"+trip.ID+"/participants", map[string]any{"userId": "ghost"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("ghost participant: status=%d", rr.Code)
	}

	got = decode[tripResponse](t, f.do(t, http.MethodDelete, "/users/"+owner.ID+"/trips/"+trip.ID+"/participants/"+friend.ID, nil))
	if len(got.ParticipantIDs) != 0 {
		t.Fatalf("participants after remove=%v", got.ParticipantIDs)
	}
}

func TestTrackingEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	u := f.createUser(t, "Ida")
	trip := f.createTrip(t, u.ID, "Alps")

	status := decode[trackingStatusResponse](t, f.do(t, http.MethodGet, "/tracking/status", nil))
	if status.State != string(tracking.StateIdle) {
		t.Fatalf("state=%q", status.State)
	}

	rr := f.do(t, http.MethodPost, "/tracking/start", map[string]any{"tripId": "ghost", "userId": u.ID})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("start with unknown trip: status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodPost, "/tracking/start", map[string]any{"tripId": trip.ID, "userId": u.ID})
	if rr.Code != http.StatusOK {
		t.Fatalf("start: status=%d body=%s", rr.Code, rr.Body.String())
	}
	status = decode[trackingStatusResponse](t, rr)
	if status.State != string(tracking.StateTracking) || status.TripID == nil || *status.TripID != trip.ID {
		t.Fatalf("status=%+v", status)
	}

	rr = f.do(t, http.MethodPost, "/tracking/start", map[string]any{"tripId": trip.ID, "userId": u.ID})
	if rr.Code != http.StatusConflict {
		t.Fatalf("double start: status=%d", rr.Code)
	}

	status = decode[trackingStatusResponse](t, f.do(t, http.MethodPut, "/tracking/tier", map[string]any{"tier": "FINE"}))
	if status.SelectedTier != "FINE" {
		t.Fatalf("selectedTier=%q", status.SelectedTier)
	}
	rr = f.do(t, http.MethodPut, "/tracking/tier", map[string]any{"tier": "TURBO"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown tier: status=%d", rr.Code)
	}

	rr = f.do(t, http.MethodPost, "/tracking/waypoints", map[string]any{
		"title":    "Summit",
		"location": map[string]any{"lat": 47.1, "lon": 11.3},
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("manual waypoint: status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = f.do(t, http.MethodPost, "/tracking/waypoints", map[string]any{"title": "   "})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("blank title: status=%d", rr.Code)
	}

	memories := decode[[]memoryResponse](t, f.do(t, http.MethodGet, "/users/"+u.ID+"/trips/"+trip.ID+"/memories", nil))
	if len(memories) != 1 || memories[0].Title != "Summit" {
		t.Fatalf("memories=%+v", memories)
	}

	status = decode[trackingStatusResponse](t, f.do(t, http.MethodPost, "/tracking/stop", nil))
	if status.State != string(tracking.StateIdle) {
		t.Fatalf("state after stop=%q", status.State)
	}
}

func TestQueueFlushEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	u := f.createUser(t, "Ida")
	trip := f.createTrip(t, u.ID, "Alps")
	rr := f.do(t, http.MethodPost, "/tracking/start", map[string]any{"tripId": trip.ID, "userId": u.ID})
	if rr.Code != http.StatusOK {
		t.Fatalf("start: status=%d", rr.Code)
	}

	f.memories.SetUnavailable(true)
	rr = f.do(t, http.MethodPost, "/tracking/waypoints", map[string]any{
		"title":    "Café stop",
		"location": map[string]any{"lat": 47.1, "lon": 11.3},
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("buffered waypoint: status=%d body=%s", rr.Code, rr.Body.String())
	}
	status := decode[trackingStatusResponse](t, f.do(t, http.MethodGet, "/tracking/status", nil))
	if status.QueueSize != 1 {
		t.Fatalf("queueSize=%d", status.QueueSize)
	}

	f.memories.SetUnavailable(false)
	flush := decode[flushResponse](t, f.do(t, http.MethodPost, "/queue/flush", nil))
	if flush.Promoted != 1 || flush.Remaining != 0 {
		t.Fatalf("flush=%+v", flush)
	}

	memories := decode[[]memoryResponse](t, f.do(t, http.MethodGet, "/users/"+u.ID+"/trips/"+trip.ID+"/memories", nil))
	if len(memories) != 1 || memories[0].Title != "Café stop" {
		t.Fatalf("memories=%+v", memories)
	}
}
