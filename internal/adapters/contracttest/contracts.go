// Package contracttest holds behavioral suites every implementation of the
// persistence ports must pass. The memory and postgres adapters run the same
// suites, so the app layer can treat them as interchangeable.
package contracttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fernweh-app/journal-core/internal/domain"
	kvstoreport "github.com/fernweh-app/journal-core/internal/ports/out/kvstore"
	memoryrepoport "github.com/fernweh-app/journal-core/internal/ports/out/memoryrepo"
	triprepoport "github.com/fernweh-app/journal-core/internal/ports/out/triprepo"
	userrepoport "github.com/fernweh-app/journal-core/internal/ports/out/userrepo"
)

type CleanupFunc = func()

type UserRepoFactory func(t *testing.T) (userrepoport.Repository, CleanupFunc)
type TripRepoFactory func(t *testing.T) (triprepoport.Repository, CleanupFunc)
type MemoryRepoFactory func(t *testing.T) (memoryrepoport.Repository, CleanupFunc)
type KVStoreFactory func(t *testing.T) (kvstoreport.Store, CleanupFunc)

func RunUserRepo(t *testing.T, newRepo UserRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(1000, 0).UTC()
	aID := domain.UserID(uuid.NewString())
	if err := repo.Create(ctx, userrepoport.User{
		ID:          aID,
		DisplayName: "Ada",
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		t.Fatalf("Create a: %v", err)
	}
	got, err := repo.GetByID(ctx, aID)
	if err != nil || got.DisplayName != "Ada" {
		t.Fatalf("GetByID: %+v err=%v", got, err)
	}

	// ID uniqueness.
	if err := repo.Create(ctx, userrepoport.User{ID: aID, DisplayName: "Dup", CreatedAt: now, UpdatedAt: now}); !errors.Is(err, userrepoport.ErrAlreadyExists) {
		t.Fatalf("duplicate Create err=%v", err)
	}

	// Save round-trips changes.
	got.DisplayName = "Ada Lovelace"
	got.IsActive = false
	if err := repo.Save(ctx, got); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got, err = repo.GetByID(ctx, aID); err != nil || got.DisplayName != "Ada Lovelace" || got.IsActive {
		t.Fatalf("after Save: %+v err=%v", got, err)
	}

	// Deterministic list ordering by display name, then ID.
	bID := domain.UserID(uuid.NewString())
	if err := repo.Create(ctx, userrepoport.User{ID: bID, DisplayName: "Brook", IsActive: true, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("Create b: %v", err)
	}
	us, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(us) != 2 || us[0].DisplayName != "Ada Lovelace" || us[1].DisplayName != "Brook" {
		t.Fatalf("unexpected ordering: %#v", us)
	}

	// Deleted vs never-existed must stay distinguishable.
	if err := repo.Delete(ctx, aID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, aID); !errors.Is(err, userrepoport.ErrDeleted) {
		t.Fatalf("GetByID deleted err=%v, want ErrDeleted", err)
	}
	if _, err := repo.GetByID(ctx, domain.UserID(uuid.NewString())); !errors.Is(err, userrepoport.ErrNotFound) {
		t.Fatalf("GetByID missing err=%v, want ErrNotFound", err)
	}
	if err := repo.Save(ctx, got); !errors.Is(err, userrepoport.ErrDeleted) {
		t.Fatalf("Save deleted err=%v, want ErrDeleted", err)
	}
	us, err = repo.List(ctx)
	if err != nil || len(us) != 1 || us[0].ID != bID {
		t.Fatalf("List after delete: %#v err=%v", us, err)
	}
}

func RunTripRepo(t *testing.T, newRepo TripRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(2000, 0).UTC()
	owner := domain.UserID(uuid.NewString())
	other := domain.UserID(uuid.NewString())
	mk := func(id domain.TripID, start time.Time, forOwner domain.UserID) triprepoport.Trip {
		return triprepoport.Trip{
			ID:        id,
			Title:     string(id),
			StartDate: start,
			OwnerID:   forOwner,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	aID := domain.TripID(uuid.NewString())
	bID := domain.TripID(uuid.NewString())
	cID := domain.TripID(uuid.NewString())
	foreignID := domain.TripID(uuid.NewString())
	for _, tr := range []triprepoport.Trip{
		mk(aID, now.Add(48*time.Hour), owner),
		mk(bID, now.Add(24*time.Hour), owner),
		mk(cID, now, owner),
		mk(foreignID, now, other),
	} {
		if err := repo.Create(ctx, tr); err != nil {
			t.Fatalf("Create %s: %v", tr.ID, err)
		}
	}

	// ListByOwner: only the owner's trips, StartDate descending while none
	// is active.
	ts, err := repo.ListByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(ts) != 3 || ts[0].ID != aID || ts[1].ID != bID || ts[2].ID != cID {
		t.Fatalf("unexpected ordering: %#v", ts)
	}

	// Exclusive activation: after any successful call exactly one trip of
	// the owner is active, and it sorts first.
	if err := repo.ActivateExclusive(ctx, owner, cID); err != nil {
		t.Fatalf("ActivateExclusive c: %v", err)
	}
	if err := repo.ActivateExclusive(ctx, owner, bID); err != nil {
		t.Fatalf("ActivateExclusive b: %v", err)
	}
	ts, err = repo.ListByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	active := 0
	for _, tr := range ts {
		if tr.IsActive {
			active++
		}
	}
	if active != 1 || !ts[0].IsActive || ts[0].ID != bID {
		t.Fatalf("after activation: active=%d order=%#v", active, ts)
	}

	// Activation never crosses owners.
	if err := repo.ActivateExclusive(ctx, owner, foreignID); !errors.Is(err, triprepoport.ErrNotFound) {
		t.Fatalf("cross-owner ActivateExclusive err=%v", err)
	}
	foreign, err := repo.GetByID(ctx, foreignID)
	if err != nil || foreign.IsActive {
		t.Fatalf("foreign trip touched: %+v err=%v", foreign, err)
	}

	// Activating a missing trip fails without changing anything.
	if err := repo.ActivateExclusive(ctx, owner, domain.TripID(uuid.NewString())); !errors.Is(err, triprepoport.ErrNotFound) {
		t.Fatalf("missing ActivateExclusive err=%v", err)
	}
	got, err := repo.GetByID(ctx, bID)
	if err != nil || !got.IsActive {
		t.Fatalf("b after failed activation: %+v err=%v", got, err)
	}

	// Save round-trips nullable and slice fields.
	desc := "over the passes"
	end := now.Add(96 * time.Hour)
	got.Description = &desc
	got.EndDate = &end
	got.ParticipantIDs = []domain.UserID{other}
	if err := repo.Save(ctx, got); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err = repo.GetByID(ctx, bID)
	if err != nil || got.Description == nil || *got.Description != desc {
		t.Fatalf("description lost: %+v err=%v", got, err)
	}
	if got.EndDate == nil || !got.EndDate.Equal(end) || len(got.ParticipantIDs) != 1 {
		t.Fatalf("end/participants lost: %+v", got)
	}

	// Delete leaves a tombstone and blocks re-activation.
	if err := repo.Delete(ctx, bID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, bID); !errors.Is(err, triprepoport.ErrDeleted) {
		t.Fatalf("GetByID deleted err=%v, want ErrDeleted", err)
	}
	if err := repo.ActivateExclusive(ctx, owner, bID); !errors.Is(err, triprepoport.ErrDeleted) {
		t.Fatalf("ActivateExclusive deleted err=%v, want ErrDeleted", err)
	}
	ts, err = repo.ListByOwner(ctx, owner)
	if err != nil || len(ts) != 2 {
		t.Fatalf("ListByOwner after delete: %#v err=%v", ts, err)
	}
}

func RunMemoryRepo(t *testing.T, newRepo MemoryRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	trip := domain.TripID(uuid.NewString())
	author := domain.UserID(uuid.NewString())
	base := time.Unix(3000, 0).UTC()
	mk := func(id domain.MemoryID, ts time.Time) memoryrepoport.Memory {
		return memoryrepoport.Memory{
			ID:        id,
			TripID:    trip,
			Author:    author,
			Title:     "Waypoint",
			Latitude:  47.0,
			Longitude: 11.0,
			Timestamp: ts,
			CreatedAt: base,
		}
	}
	aID := domain.MemoryID(uuid.NewString())
	bID := domain.MemoryID(uuid.NewString())
	if err := repo.Create(ctx, mk(aID, base.Add(time.Hour))); err != nil {
		t.Fatalf("Create a: %v", err)
	}
	if err := repo.Create(ctx, mk(bID, base)); err != nil {
		t.Fatalf("Create b: %v", err)
	}
	if err := repo.Create(ctx, mk(aID, base)); !errors.Is(err, memoryrepoport.ErrAlreadyExists) {
		t.Fatalf("duplicate Create err=%v", err)
	}

	// ListByTrip orders by timestamp ascending.
	ms, err := repo.ListByTrip(ctx, trip)
	if err != nil {
		t.Fatalf("ListByTrip: %v", err)
	}
	if len(ms) != 2 || ms[0].ID != bID || ms[1].ID != aID {
		t.Fatalf("unexpected ordering: %#v", ms)
	}

	// Photos attach to an existing memory and come back with it.
	remote := "s3://photos/p1.jpg"
	if err := repo.AttachPhoto(ctx, aID, memoryrepoport.Photo{
		ID:         domain.PhotoID(uuid.NewString()),
		Filename:   "p1.jpg",
		LocalPath:  "/data/photos/p1.jpg",
		RemotePath: &remote,
	}); err != nil {
		t.Fatalf("AttachPhoto: %v", err)
	}
	if err := repo.AttachPhoto(ctx, domain.MemoryID(uuid.NewString()), memoryrepoport.Photo{ID: domain.PhotoID(uuid.NewString()), Filename: "x.jpg"}); !errors.Is(err, memoryrepoport.ErrNotFound) {
		t.Fatalf("AttachPhoto missing err=%v", err)
	}
	got, err := repo.GetByID(ctx, aID)
	if err != nil || len(got.Photos) != 1 || got.Photos[0].Filename != "p1.jpg" {
		t.Fatalf("photos lost: %+v err=%v", got, err)
	}

	// DeleteByTrip removes everything for the trip and nothing else.
	otherTrip := domain.TripID(uuid.NewString())
	keepID := domain.MemoryID(uuid.NewString())
	keep := mk(keepID, base)
	keep.TripID = otherTrip
	if err := repo.Create(ctx, keep); err != nil {
		t.Fatalf("Create keep: %v", err)
	}
	if err := repo.DeleteByTrip(ctx, trip); err != nil {
		t.Fatalf("DeleteByTrip: %v", err)
	}
	if ms, err := repo.ListByTrip(ctx, trip); err != nil || len(ms) != 0 {
		t.Fatalf("ListByTrip after delete: %#v err=%v", ms, err)
	}
	if _, err := repo.GetByID(ctx, aID); !errors.Is(err, memoryrepoport.ErrNotFound) {
		t.Fatalf("GetByID after delete err=%v", err)
	}
	if _, err := repo.GetByID(ctx, keepID); err != nil {
		t.Fatalf("unrelated memory deleted: %v", err)
	}
}

func RunKVStore(t *testing.T, newStore KVStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get missing: ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "queue", []byte(`[{"id":"r1"}]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := store.Get(ctx, "queue")
	if err != nil || !ok || string(got) != `[{"id":"r1"}]` {
		t.Fatalf("Get: %q ok=%v err=%v", got, ok, err)
	}

	// Last write wins.
	if err := store.Set(ctx, "queue", []byte(`[]`)); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if got, ok, err = store.Get(ctx, "queue"); err != nil || !ok || string(got) != `[]` {
		t.Fatalf("Get after overwrite: %q ok=%v err=%v", got, ok, err)
	}
}
