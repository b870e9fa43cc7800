package pending_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	memkvstore "github.com/fernweh-app/journal-core/internal/adapters/memory/kvstore"
	memmemoryrepo "github.com/fernweh-app/journal-core/internal/adapters/memory/memoryrepo"
	memtriprepo "github.com/fernweh-app/journal-core/internal/adapters/memory/triprepo"
	memuserrepo "github.com/fernweh-app/journal-core/internal/adapters/memory/userrepo"
	"github.com/fernweh-app/journal-core/internal/app/pending"
	"github.com/fernweh-app/journal-core/internal/domain"
	porttriprepo "github.com/fernweh-app/journal-core/internal/ports/out/triprepo"
	portuserrepo "github.com/fernweh-app/journal-core/internal/ports/out/userrepo"
)

type fixture struct {
	kv       *memkvstore.Store
	trips    *memtriprepo.Repo
	users    *memuserrepo.Repo
	memories *memmemoryrepo.Repo
	queue    *pending.Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		kv:       memkvstore.NewStore(),
		trips:    memtriprepo.NewRepo(),
		users:    memuserrepo.NewRepo(),
		memories: memmemoryrepo.NewRepo(),
	}
	now := time.Unix(100, 0).UTC()
	ctx := context.Background()
	if err := f.users.Create(ctx, portuserrepo.User{ID: "u1", DisplayName: "Ada", IsActive: true, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := f.trips.Create(ctx, porttriprepo.Trip{ID: "t1", Title: "Coast", OwnerID: "u1", StartDate: now, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create trip: %v", err)
	}
	q, err := pending.NewQueue(f.kv, "", f.trips, f.users, f.memories, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	f.queue = q
	return f
}

func record(i int) pending.Record {
	return pending.Record{
		ID:          fmt.Sprintf("r%d", i),
		OwnerTripID: "t1",
		OwnerUserID: "u1",
		Title:       fmt.Sprintf("Stop %d", i),
		Latitude:    47.1 + float64(i)/1000,
		Longitude:   11.2,
		Timestamp:   time.Unix(int64(1000+i), 0).UTC(),
	}
}

func TestQueue_FlushPromotesAllAndEmpties(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	const n = 5
	for i := 0; i < n; i++ {
		if err := f.queue.Enqueue(ctx, record(i)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if got := f.queue.Size(); got != n {
		t.Fatalf("Size=%d, want %d", got, n)
	}

	promoted, err := f.queue.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if promoted != n {
		t.Fatalf("promoted=%d, want %d", promoted, n)
	}
	if got := f.queue.Size(); got != 0 {
		t.Fatalf("Size after flush=%d, want 0", got)
	}

	ms, err := f.memories.ListByTrip(ctx, "t1")
	if err != nil {
		t.Fatalf("ListByTrip: %v", err)
	}
	if len(ms) != n {
		t.Fatalf("memories=%d, want %d", len(ms), n)
	}
	if ms[0].Title != "Stop 0" || ms[0].Author != domain.UserID("u1") {
		t.Fatalf("first memory=%+v", ms[0])
	}
}

func TestQueue_UnresolvableOwnerStaysQueued(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	good := record(1)
	orphan := record(2)
	orphan.OwnerTripID = "gone"

	_ = f.queue.Enqueue(ctx, good)
	_ = f.queue.Enqueue(ctx, orphan)

	promoted, err := f.queue.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if promoted != 1 {
		t.Fatalf("promoted=%d, want 1", promoted)
	}
	if got := f.queue.Size(); got != 1 {
		t.Fatalf("Size=%d, want 1", got)
	}

	// Retried forever: a second flush attempts it again and keeps it.
	promoted, err = f.queue.Flush(ctx)
	if err != nil || promoted != 0 {
		t.Fatalf("second Flush: promoted=%d err=%v", promoted, err)
	}
	if got := f.queue.Size(); got != 1 {
		t.Fatalf("Size after second flush=%d, want 1", got)
	}
}

func TestQueue_StoreErrorKeepsRecordQueued(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_ = f.queue.Enqueue(ctx, record(1))
	f.memories.SetUnavailable(true)

	promoted, err := f.queue.Flush(ctx)
	if err != nil || promoted != 0 {
		t.Fatalf("Flush during outage: promoted=%d err=%v", promoted, err)
	}
	if got := f.queue.Size(); got != 1 {
		t.Fatalf("Size=%d, want 1", got)
	}

	f.memories.SetUnavailable(false)
	promoted, err = f.queue.Flush(ctx)
	if err != nil || promoted != 1 {
		t.Fatalf("Flush after recovery: promoted=%d err=%v", promoted, err)
	}
	if got := f.queue.Size(); got != 0 {
		t.Fatalf("Size=%d, want 0", got)
	}
}

func TestQueue_ReloadsFromStoreOnStart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_ = f.queue.Enqueue(ctx, record(1))
	_ = f.queue.Enqueue(ctx, record(2))

	// A second queue over the same kvstore simulates a process restart.
	reloaded, err := pending.NewQueue(f.kv, "", f.trips, f.users, f.memories, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewQueue (reload): %v", err)
	}
	if got := reloaded.Size(); got != 2 {
		t.Fatalf("reloaded Size=%d, want 2", got)
	}

	promoted, err := reloaded.Flush(ctx)
	if err != nil || promoted != 2 {
		t.Fatalf("reloaded Flush: promoted=%d err=%v", promoted, err)
	}
}

func TestQueue_EnqueueDuringFlushIsSafe(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_ = f.queue.Enqueue(ctx, record(i))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 100; i < 120; i++ {
			_ = f.queue.Enqueue(ctx, record(i))
		}
	}()
	go func() {
		defer wg.Done()
		_, _ = f.queue.Flush(ctx)
	}()
	wg.Wait()

	// Whatever the interleaving, a final flush drains everything.
	if _, err := f.queue.Flush(ctx); err != nil {
		t.Fatalf("final Flush: %v", err)
	}
	if got := f.queue.Size(); got != 0 {
		t.Fatalf("Size=%d, want 0", got)
	}

	ms, err := f.memories.ListByTrip(ctx, "t1")
	if err != nil {
		t.Fatalf("ListByTrip: %v", err)
	}
	if len(ms) != 40 {
		t.Fatalf("memories=%d, want 40", len(ms))
	}
}
