package tracking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	memkvstore "github.com/fernweh-app/journal-core/internal/adapters/memory/kvstore"
	memmemoryrepo "github.com/fernweh-app/journal-core/internal/adapters/memory/memoryrepo"
	memtriprepo "github.com/fernweh-app/journal-core/internal/adapters/memory/triprepo"
	memuserrepo "github.com/fernweh-app/journal-core/internal/adapters/memory/userrepo"
	"github.com/fernweh-app/journal-core/internal/adapters/sim"
	"github.com/fernweh-app/journal-core/internal/app/pending"
	"github.com/fernweh-app/journal-core/internal/app/reconcile"
	"github.com/fernweh-app/journal-core/internal/app/tracking"
	"github.com/fernweh-app/journal-core/internal/domain"
	platformclock "github.com/fernweh-app/journal-core/internal/platform/clock"
	"github.com/fernweh-app/journal-core/internal/ports/out/power"
	"github.com/fernweh-app/journal-core/internal/ports/out/sensor"
	porttriprepo "github.com/fernweh-app/journal-core/internal/ports/out/triprepo"
	portuserrepo "github.com/fernweh-app/journal-core/internal/ports/out/userrepo"
)

type fixture struct {
	sensor   *sim.Sensor
	battery  *sim.Battery
	clk      *platformclock.ManualClock
	trips    *memtriprepo.Repo
	users    *memuserrepo.Repo
	memories *memmemoryrepo.Repo
	queue    *pending.Queue
	session  *tracking.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sensor:   sim.NewSensor(),
		battery:  sim.NewBattery(),
		clk:      platformclock.NewManualClock(time.Unix(1_000_000, 0).UTC()),
		trips:    memtriprepo.NewRepo(),
		users:    memuserrepo.NewRepo(),
		memories: memmemoryrepo.NewRepo(),
	}
	ctx := context.Background()
	now := f.clk.Now()
	if err := f.users.Create(ctx, portuserrepo.User{ID: "u1", DisplayName: "Ada", IsActive: true, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := f.trips.Create(ctx, porttriprepo.Trip{ID: "t1", Title: "Dolomites", OwnerID: "u1", StartDate: now, IsActive: true, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create trip: %v", err)
	}
	q, err := pending.NewQueue(memkvstore.NewStore(), "", f.trips, f.users, f.memories, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	f.queue = q
	f.session = tracking.NewSession(
		tracking.DefaultPolicy(),
		f.sensor, f.battery, f.clk, q,
		f.trips, f.users, f.memories,
		zerolog.Nop(),
	)
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.session.Start(context.Background(), "t1", "u1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

// fix delivers a sanitizer-clean fix stamped with the current manual time.
func (f *fixture) fix(lat, lon float64) {
	f.sensor.Deliver(sensor.Fix{Latitude: lat, Longitude: lon, Time: f.clk.Now()})
}

// memoryCount waits out the fire-and-forget commit goroutine.
func (f *fixture) memoryCount(t *testing.T, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		ms, err := f.memories.ListByTrip(context.Background(), "t1")
		if err != nil {
			t.Fatalf("ListByTrip: %v", err)
		}
		if len(ms) == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("memories=%d, want %d", len(ms), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSession_StartAndStop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if f.session.IsTracking() {
		t.Fatalf("new session should be idle")
	}
	// Stop from Idle is a safe no-op.
	f.session.Stop()

	f.start(t)
	if !f.session.IsTracking() || f.session.IsPaused() {
		t.Fatalf("state=%v", f.session.State())
	}
	if f.sensor.Mode() != sim.SensorUpdates {
		t.Fatalf("sensor mode=%v", f.sensor.Mode())
	}

	if err := f.session.Start(context.Background(), "t1", "u1"); !errors.Is(err, tracking.ErrAlreadyTracking) {
		t.Fatalf("second Start err=%v", err)
	}

	f.session.Stop()
	if f.session.IsTracking() {
		t.Fatalf("session still tracking after Stop")
	}
	if f.sensor.Mode() != sim.SensorStopped {
		t.Fatalf("sensor mode after Stop=%v", f.sensor.Mode())
	}
}

func TestSession_StartRejectsStaleTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.trips.Delete(context.Background(), "t1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	err := f.session.Start(context.Background(), "t1", "u1")
	se, ok := reconcile.IsStale(err)
	if !ok || se.Reason != reconcile.StaleDeleted {
		t.Fatalf("Start err=%v, want stale-deleted", err)
	}
	if f.session.IsTracking() {
		t.Fatalf("session must stay idle after failed start")
	}
}

func TestSession_WaypointGate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.start(t)

	// First fix anchors the gate without creating a waypoint.
	f.fix(47.0, 11.0)
	// Small drift (~1.1 m per step) under the 5 m gate, well inside 5 min.
	for i := 1; i <= 3; i++ {
		f.clk.Advance(10 * time.Second)
		f.fix(47.0+float64(i)*0.00001, 11.0)
	}
	f.memoryCount(t, 0)

	// ~11 m jump crosses the displacement gate: exactly one waypoint.
	f.clk.Advance(10 * time.Second)
	f.fix(47.001, 11.0)
	f.memoryCount(t, 1)

	ms, _ := f.memories.ListByTrip(context.Background(), "t1")
	if ms[0].Author != domain.UserID("u1") || ms[0].TripID != domain.TripID("t1") {
		t.Fatalf("waypoint=%+v", ms[0])
	}

	// Standing still: the elapsed gate fires at 5 minutes even with zero
	// displacement.
	f.clk.Advance(5 * time.Minute)
	f.fix(47.001, 11.0)
	f.memoryCount(t, 2)
}

func TestSession_PauseAndResumeExactlyOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.start(t)

	f.fix(47.0, 11.0)
	startCount := f.sensor.StartCount()

	// No qualifying fix for the pause timeout: Paused, significant-change
	// mode.
	f.clk.Advance(5 * time.Minute)
	if !f.session.IsPaused() {
		t.Fatalf("state=%v, want paused", f.session.State())
	}
	if f.sensor.Mode() != sim.SensorSignificantChanges {
		t.Fatalf("sensor mode=%v", f.sensor.Mode())
	}

	// More silence does not re-fire the transition.
	f.clk.Advance(10 * time.Minute)
	if !f.session.IsPaused() {
		t.Fatalf("paused state should be stable")
	}

	// The next valid fix resumes tracking exactly once.
	f.fix(47.0, 11.0)
	if f.session.IsPaused() || !f.session.IsTracking() {
		t.Fatalf("state=%v, want tracking", f.session.State())
	}
	if f.sensor.Mode() != sim.SensorUpdates {
		t.Fatalf("sensor mode=%v", f.sensor.Mode())
	}
	if got := f.sensor.StartCount(); got != startCount+1 {
		t.Fatalf("StartUpdates called %d extra times, want 1", got-startCount)
	}

	// And the pause timer is armed again afterwards.
	f.clk.Advance(5 * time.Minute)
	if !f.session.IsPaused() {
		t.Fatalf("second pause did not happen")
	}
}

func TestSession_InvalidFixesAreDropped(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.start(t)

	// Out-of-range and stale fixes neither update the location nor anchor
	// the waypoint gate.
	f.sensor.Deliver(sensor.Fix{Latitude: 95, Longitude: 11, Time: f.clk.Now()})
	f.sensor.Deliver(sensor.Fix{Latitude: 47, Longitude: 11, Time: f.clk.Now().Add(-2 * time.Minute)})
	bad := -3.0
	f.sensor.Deliver(sensor.Fix{Latitude: 47, Longitude: 11, AccuracyMeters: &bad, Time: f.clk.Now()})

	if _, ok := f.session.CurrentLocation(); ok {
		t.Fatalf("invalid fixes must not set the current location")
	}
	f.memoryCount(t, 0)

	f.fix(47.0, 11.0)
	if loc, ok := f.session.CurrentLocation(); !ok || loc.Latitude != 47.0 {
		t.Fatalf("loc=%+v ok=%v", loc, ok)
	}
}

func TestSession_BatteryOverrideDowngradesSilently(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.session.SetTier(tracking.TierFine); err != nil {
		t.Fatalf("SetTier: %v", err)
	}
	f.start(t)
	if f.sensor.Profile().Precision != sensor.PrecisionFine {
		t.Fatalf("profile=%+v", f.sensor.Profile())
	}

	// Battery drops to 15% while not charging: effective tier downgrades to
	// coarse, the stored selection stays fine.
	f.battery.SetState(power.State{Level: 0.15, Charging: false})
	if got := f.session.EffectiveTier(); got != tracking.TierCoarse {
		t.Fatalf("effective=%s, want COARSE", got)
	}
	if got := f.session.SelectedTier(); got != tracking.TierFine {
		t.Fatalf("selected=%s, want FINE (selection must not change)", got)
	}
	if f.sensor.Profile().Precision != sensor.PrecisionCoarse {
		t.Fatalf("sensor not resubscribed: %+v", f.sensor.Profile())
	}

	// Plugging in restores the selection.
	f.battery.SetState(power.State{Level: 0.15, Charging: true})
	if got := f.session.EffectiveTier(); got != tracking.TierFine {
		t.Fatalf("effective after charge=%s, want FINE", got)
	}
}

func TestSession_ManualWaypointValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	// No active session: logged no-op, no error, nothing stored.
	if err := f.session.CreateManualWaypoint(ctx, "Café stop", nil, nil); err != nil {
		t.Fatalf("idle manual waypoint err=%v", err)
	}
	f.memoryCount(t, 0)

	f.start(t)

	if err := f.session.CreateManualWaypoint(ctx, "   ", nil, nil); !errors.Is(err, tracking.ErrEmptyTitle) {
		t.Fatalf("empty title err=%v", err)
	}
	badLoc := &domain.Coordinate{Latitude: 91, Longitude: 0}
	if err := f.session.CreateManualWaypoint(ctx, "Pass", nil, badLoc); !errors.Is(err, tracking.ErrInvalidCoordinate) {
		t.Fatalf("bad coordinate err=%v", err)
	}

	// No location known yet and none given: logged no-op.
	if err := f.session.CreateManualWaypoint(ctx, "Pass", nil, nil); err != nil {
		t.Fatalf("no-location manual waypoint err=%v", err)
	}
	f.memoryCount(t, 0)

	f.fix(47.0, 11.0)
	if err := f.session.CreateManualWaypoint(ctx, "Pass", nil, nil); err != nil {
		t.Fatalf("manual waypoint err=%v", err)
	}
	f.memoryCount(t, 1)
	ms, _ := f.memories.ListByTrip(ctx, "t1")
	if ms[0].Title != "Pass" || ms[0].Latitude != 47.0 {
		t.Fatalf("manual waypoint=%+v", ms[0])
	}
}

func TestSession_UnreachableStoreBuffersThenFlushes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)
	f.fix(47.0, 11.0)

	f.memories.SetUnavailable(true)
	if err := f.session.CreateManualWaypoint(ctx, "Café stop", nil, nil); err != nil {
		t.Fatalf("manual waypoint during outage err=%v", err)
	}
	if got := f.queue.Size(); got != 1 {
		t.Fatalf("queue size=%d, want 1", got)
	}
	f.memoryCount(t, 0)

	f.memories.SetUnavailable(false)
	promoted, err := f.queue.Flush(ctx)
	if err != nil || promoted != 1 {
		t.Fatalf("Flush: promoted=%d err=%v", promoted, err)
	}
	if got := f.queue.Size(); got != 0 {
		t.Fatalf("queue size after flush=%d, want 0", got)
	}
	ms, _ := f.memories.ListByTrip(ctx, "t1")
	if len(ms) != 1 || ms[0].Title != "Café stop" || ms[0].Author != domain.UserID("u1") {
		t.Fatalf("promoted memory=%+v", ms)
	}
}

func TestSession_AuthorizationDenialStopsSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.start(t)

	f.sensor.DeliverError(errors.New("temporarily unavailable"))
	if !f.session.IsTracking() {
		t.Fatalf("transient sensor error must not stop tracking")
	}

	f.sensor.ChangeAuthorization(sensor.AuthorizationDenied)
	if f.session.IsTracking() {
		t.Fatalf("session must stop on authorization denial")
	}
	if !f.session.AuthorizationDenied() {
		t.Fatalf("denial flag not surfaced")
	}
	if f.sensor.Mode() != sim.SensorStopped {
		t.Fatalf("sensor mode=%v", f.sensor.Mode())
	}
}

func TestSession_RetargetKeepsTracking(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	now := f.clk.Now()
	if err := f.trips.Create(ctx, porttriprepo.Trip{ID: "t2", Title: "Coast", OwnerID: "u1", StartDate: now, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create t2: %v", err)
	}

	f.start(t)
	f.fix(47.0, 11.0)
	f.session.Retarget("t2")

	if id, ok := f.session.CurrentTripID(); !ok || id != domain.TripID("t2") {
		t.Fatalf("current trip=%v ok=%v", id, ok)
	}
	if !f.session.IsTracking() {
		t.Fatalf("retarget must not stop tracking")
	}

	// Waypoints created after the retarget land on the new trip.
	if err := f.session.CreateManualWaypoint(ctx, "Switchback", nil, nil); err != nil {
		t.Fatalf("manual waypoint: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		ms, _ := f.memories.ListByTrip(ctx, "t2")
		if len(ms) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("waypoint did not land on retargeted trip")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
