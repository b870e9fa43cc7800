package userrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/fernweh-app/journal-core/internal/domain"
	"github.com/fernweh-app/journal-core/internal/ports/out/userrepo"
)

// Repo is an in-memory implementation of userrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu          sync.RWMutex
	byID        map[domain.UserID]userrepo.User
	deleted     map[domain.UserID]struct{}
	unavailable bool
}

func NewRepo() *Repo {
	return &Repo{
		byID:    make(map[domain.UserID]userrepo.User),
		deleted: make(map[domain.UserID]struct{}),
	}
}

// SetUnavailable toggles simulated store outage. While unavailable every
// operation fails with userrepo.ErrUnavailable.
func (r *Repo) SetUnavailable(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = v
}

func (r *Repo) Create(ctx context.Context, u userrepo.User) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return userrepo.ErrUnavailable
	}
	if u.ID == "" {
		return userrepo.ErrAlreadyExists
	}
	if _, ok := r.byID[u.ID]; ok {
		return userrepo.ErrAlreadyExists
	}
	if _, ok := r.deleted[u.ID]; ok {
		return userrepo.ErrAlreadyExists
	}
	r.byID[u.ID] = u
	return nil
}

func (r *Repo) Save(ctx context.Context, u userrepo.User) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return userrepo.ErrUnavailable
	}
	if _, ok := r.deleted[u.ID]; ok {
		return userrepo.ErrDeleted
	}
	if _, ok := r.byID[u.ID]; !ok {
		return userrepo.ErrNotFound
	}
	r.byID[u.ID] = u
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.UserID) (userrepo.User, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.unavailable {
		return userrepo.User{}, userrepo.ErrUnavailable
	}
	if _, ok := r.deleted[id]; ok {
		return userrepo.User{}, userrepo.ErrDeleted
	}
	u, ok := r.byID[id]
	if !ok {
		return userrepo.User{}, userrepo.ErrNotFound
	}
	return u, nil
}

func (r *Repo) List(ctx context.Context) ([]userrepo.User, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.unavailable {
		return nil, userrepo.ErrUnavailable
	}
	out := make([]userrepo.User, 0, len(r.byID))
	for _, u := range r.byID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *Repo) Delete(ctx context.Context, id domain.UserID) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return userrepo.ErrUnavailable
	}
	if _, ok := r.deleted[id]; ok {
		return userrepo.ErrDeleted
	}
	if _, ok := r.byID[id]; !ok {
		return userrepo.ErrNotFound
	}
	delete(r.byID, id)
	r.deleted[id] = struct{}{}
	return nil
}
