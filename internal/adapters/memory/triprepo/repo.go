package triprepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fernweh-app/journal-core/internal/domain"
	"github.com/fernweh-app/journal-core/internal/ports/out/triprepo"
)

// Repo is an in-memory implementation of triprepo.Repository.
// It is safe for concurrent use. ActivateExclusive commits under a single
// lock acquisition, which gives it the required all-or-nothing semantics.
type Repo struct {
	mu          sync.RWMutex
	byID        map[domain.TripID]triprepo.Trip
	deleted     map[domain.TripID]struct{}
	unavailable bool
}

func NewRepo() *Repo {
	return &Repo{
		byID:    make(map[domain.TripID]triprepo.Trip),
		deleted: make(map[domain.TripID]struct{}),
	}
}

// SetUnavailable toggles simulated store outage. While unavailable every
// operation fails with triprepo.ErrUnavailable.
func (r *Repo) SetUnavailable(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = v
}

func (r *Repo) Create(ctx context.Context, t triprepo.Trip) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return triprepo.ErrUnavailable
	}
	if t.ID == "" {
		return triprepo.ErrAlreadyExists
	}
	if _, ok := r.byID[t.ID]; ok {
		return triprepo.ErrAlreadyExists
	}
	if _, ok := r.deleted[t.ID]; ok {
		return triprepo.ErrAlreadyExists
	}
	r.byID[t.ID] = cloneTrip(t)
	return nil
}

func (r *Repo) Save(ctx context.Context, t triprepo.Trip) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return triprepo.ErrUnavailable
	}
	if _, ok := r.deleted[t.ID]; ok {
		return triprepo.ErrDeleted
	}
	if _, ok := r.byID[t.ID]; !ok {
		return triprepo.ErrNotFound
	}
	r.byID[t.ID] = cloneTrip(t)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.TripID) (triprepo.Trip, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.unavailable {
		return triprepo.Trip{}, triprepo.ErrUnavailable
	}
	if _, ok := r.deleted[id]; ok {
		return triprepo.Trip{}, triprepo.ErrDeleted
	}
	t, ok := r.byID[id]
	if !ok {
		return triprepo.Trip{}, triprepo.ErrNotFound
	}
	return cloneTrip(t), nil
}

func (r *Repo) ListByOwner(ctx context.Context, owner domain.UserID) ([]triprepo.Trip, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.unavailable {
		return nil, triprepo.ErrUnavailable
	}
	out := make([]triprepo.Trip, 0)
	for _, t := range r.byID {
		if t.OwnerID == owner {
			out = append(out, cloneTrip(t))
		}
	}
	sortTrips(out)
	return out, nil
}

func (r *Repo) ActivateExclusive(ctx context.Context, owner domain.UserID, id domain.TripID) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return triprepo.ErrUnavailable
	}
	if _, ok := r.deleted[id]; ok {
		return triprepo.ErrDeleted
	}
	target, ok := r.byID[id]
	if !ok || target.OwnerID != owner {
		return triprepo.ErrNotFound
	}
	for tid, t := range r.byID {
		if t.OwnerID != owner {
			continue
		}
		t.IsActive = tid == id
		r.byID[tid] = t
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id domain.TripID) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return triprepo.ErrUnavailable
	}
	if _, ok := r.deleted[id]; ok {
		return triprepo.ErrDeleted
	}
	if _, ok := r.byID[id]; !ok {
		return triprepo.ErrNotFound
	}
	delete(r.byID, id)
	r.deleted[id] = struct{}{}
	return nil
}

func cloneTrip(t triprepo.Trip) triprepo.Trip {
	cp := t
	cp.Description = cloneStringPtr(t.Description)
	cp.EndDate = cloneTimePtr(t.EndDate)
	if t.ParticipantIDs != nil {
		cp.ParticipantIDs = append([]domain.UserID(nil), t.ParticipantIDs...)
	}
	return cp
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

func sortTrips(ts []triprepo.Trip) {
	// Sorting rule: active trip first, then StartDate descending, then ID.
	sort.Slice(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		if a.IsActive != b.IsActive {
			return a.IsActive
		}
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.After(b.StartDate)
		}
		return a.ID < b.ID
	})
}
