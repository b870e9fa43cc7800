package memoryrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/fernweh-app/journal-core/internal/domain"
	"github.com/fernweh-app/journal-core/internal/ports/out/memoryrepo"
)

// Repo is an in-memory implementation of memoryrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu          sync.RWMutex
	byID        map[domain.MemoryID]memoryrepo.Memory
	unavailable bool
}

func NewRepo() *Repo {
	return &Repo{
		byID: make(map[domain.MemoryID]memoryrepo.Memory),
	}
}

// SetUnavailable toggles simulated store outage. While unavailable every
// operation fails with memoryrepo.ErrUnavailable; the write path reacts by
// buffering into the pending queue.
func (r *Repo) SetUnavailable(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = v
}

func (r *Repo) Create(ctx context.Context, m memoryrepo.Memory) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return memoryrepo.ErrUnavailable
	}
	if m.ID == "" {
		return memoryrepo.ErrAlreadyExists
	}
	if _, ok := r.byID[m.ID]; ok {
		return memoryrepo.ErrAlreadyExists
	}
	r.byID[m.ID] = cloneMemory(m)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.MemoryID) (memoryrepo.Memory, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.unavailable {
		return memoryrepo.Memory{}, memoryrepo.ErrUnavailable
	}
	m, ok := r.byID[id]
	if !ok {
		return memoryrepo.Memory{}, memoryrepo.ErrNotFound
	}
	return cloneMemory(m), nil
}

func (r *Repo) ListByTrip(ctx context.Context, trip domain.TripID) ([]memoryrepo.Memory, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.unavailable {
		return nil, memoryrepo.ErrUnavailable
	}
	out := make([]memoryrepo.Memory, 0)
	for _, m := range r.byID {
		if m.TripID == trip {
			out = append(out, cloneMemory(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *Repo) AttachPhoto(ctx context.Context, id domain.MemoryID, p memoryrepo.Photo) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return memoryrepo.ErrUnavailable
	}
	m, ok := r.byID[id]
	if !ok {
		return memoryrepo.ErrNotFound
	}
	m.Photos = append(m.Photos, clonePhoto(p))
	r.byID[id] = m
	return nil
}

func (r *Repo) DeleteByTrip(ctx context.Context, trip domain.TripID) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return memoryrepo.ErrUnavailable
	}
	for id, m := range r.byID {
		if m.TripID == trip {
			delete(r.byID, id)
		}
	}
	return nil
}

func cloneMemory(m memoryrepo.Memory) memoryrepo.Memory {
	cp := m
	if m.Content != nil {
		v := *m.Content
		cp.Content = &v
	}
	if m.Photos != nil {
		cp.Photos = make([]memoryrepo.Photo, 0, len(m.Photos))
		for _, p := range m.Photos {
			cp.Photos = append(cp.Photos, clonePhoto(p))
		}
	}
	return cp
}

func clonePhoto(p memoryrepo.Photo) memoryrepo.Photo {
	cp := p
	if p.RemotePath != nil {
		v := *p.RemotePath
		cp.RemotePath = &v
	}
	return cp
}
