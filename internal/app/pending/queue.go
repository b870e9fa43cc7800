// Package pending is the durable local buffer for memory writes that could
// not reach the store. Buffering here is the primary resilience mechanism of
// the write path, not a fallback: an unreachable store at write time is not
// an error.
package pending

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fernweh-app/journal-core/internal/app/reconcile"
	"github.com/fernweh-app/journal-core/internal/domain"
	"github.com/fernweh-app/journal-core/internal/ports/out/kvstore"
	"github.com/fernweh-app/journal-core/internal/ports/out/memoryrepo"
	"github.com/fernweh-app/journal-core/internal/ports/out/triprepo"
	"github.com/fernweh-app/journal-core/internal/ports/out/userrepo"
)

// DefaultStorageKey is the kvstore key the serialized queue lives under.
const DefaultStorageKey = "pending_waypoints"

// Record mirrors a memory's fields plus its owner identities. It exists only
// while queued and is deleted once promoted to a committed memory.
//
// The serialized form (a flat ordered JSON array of these) is the one
// on-disk format this core owns. There is deliberately no version field and
// no idempotency token: promotion is at-least-once.
type Record struct {
	ID          string    `json:"id"`
	OwnerTripID string    `json:"ownerTripId"`
	OwnerUserID string    `json:"ownerUserId"`
	Title       string    `json:"title"`
	Content     *string   `json:"content,omitempty"`
	Latitude    float64   `json:"lat"`
	Longitude   float64   `json:"lon"`
	Timestamp   time.Time `json:"timestamp"`

	// Attempts counts failed promotions. It is observability only; records
	// are never dropped for having too many.
	Attempts int `json:"attempts"`
}

// Queue is the ordered, durable pending-write collection. Every mutation is
// re-serialized through the kvstore so a process restart reloads the exact
// backlog.
type Queue struct {
	kv  kvstore.Store
	key string

	trips    triprepo.Repository
	users    userrepo.Repository
	memories memoryrepo.Repository

	newMemoryID func() domain.MemoryID

	log zerolog.Logger

	mu      sync.Mutex
	records []Record
}

func NewQueue(
	kv kvstore.Store,
	key string,
	trips triprepo.Repository,
	users userrepo.Repository,
	memories memoryrepo.Repository,
	log zerolog.Logger,
) (*Queue, error) {
	if key == "" {
		key = DefaultStorageKey
	}
	q := &Queue{
		kv:       kv,
		key:      key,
		trips:    trips,
		users:    users,
		memories: memories,
		newMemoryID: func() domain.MemoryID {
			return domain.MemoryID(newUUID())
		},
		log: log.With().Str("component", "pending-queue").Logger(),
	}
	if err := q.load(context.Background()); err != nil {
		return nil, err
	}
	return q, nil
}

// SetNewMemoryIDForTest overrides memory ID generation for deterministic
// tests. It should not be used in production code.
func (q *Queue) SetNewMemoryIDForTest(fn func() domain.MemoryID) {
	if fn != nil {
		q.newMemoryID = fn
	}
}

// Enqueue appends rec and persists the queue. A persistence failure is
// logged but does not reject the record; it stays buffered in memory and the
// next successful persist picks it up.
func (q *Queue) Enqueue(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = newUUID()
	}
	q.mu.Lock()
	q.records = append(q.records, rec)
	size := len(q.records)
	err := q.persistLocked(ctx)
	q.mu.Unlock()

	if err != nil {
		q.log.Warn().Err(err).Str("record", rec.ID).Msg("queue persist failed; record buffered in memory only")
	}
	q.log.Debug().Str("record", rec.ID).Int("size", size).Msg("record enqueued")
	return nil
}

// Size returns the number of records currently buffered.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Flush tries to promote every buffered record into a committed memory and
// returns how many were promoted.
//
// Flush iterates a snapshot, so Enqueue may be called concurrently; records
// added mid-flush are simply picked up next time. A record whose owners
// resolve gets committed and removed; anything else (stale owner, store
// error) stays queued with an incremented attempt counter. There is no
// backoff and no drop-after-N: a permanently unresolvable owner is retried
// on every flush, visibly via the attempt count.
func (q *Queue) Flush(ctx context.Context) (int, error) {
	q.mu.Lock()
	snapshot := append([]Record(nil), q.records...)
	q.mu.Unlock()

	if len(snapshot) == 0 {
		return 0, nil
	}

	promoted := 0
	for _, rec := range snapshot {
		if err := q.promote(ctx, rec); err != nil {
			attempts := q.markAttempt(rec.ID)
			q.log.Warn().
				Err(err).
				Str("record", rec.ID).
				Int("attempts", attempts).
				Msg("pending record not promoted; will retry on next flush")
			continue
		}
		q.remove(rec.ID)
		promoted++
	}

	q.mu.Lock()
	err := q.persistLocked(ctx)
	size := len(q.records)
	q.mu.Unlock()
	if err != nil {
		return promoted, fmt.Errorf("persist queue after flush: %w", err)
	}

	q.log.Info().Int("promoted", promoted).Int("remaining", size).Msg("queue flushed")
	return promoted, nil
}

func (q *Queue) promote(ctx context.Context, rec Record) error {
	trip, err := reconcile.Trip(ctx, q.trips, domain.TripID(rec.OwnerTripID))
	if err != nil {
		return fmt.Errorf("resolve owner trip: %w", err)
	}
	user, err := reconcile.User(ctx, q.users, domain.UserID(rec.OwnerUserID))
	if err != nil {
		return fmt.Errorf("resolve owner user: %w", err)
	}

	m := memoryrepo.Memory{
		ID:        q.newMemoryID(),
		TripID:    trip.ID,
		Author:    user.ID,
		Title:     rec.Title,
		Content:   rec.Content,
		Latitude:  rec.Latitude,
		Longitude: rec.Longitude,
		Timestamp: rec.Timestamp,
		CreatedAt: time.Now().UTC(),
	}
	if err := q.memories.Create(ctx, m); err != nil {
		return fmt.Errorf("commit memory: %w", err)
	}
	return nil
}

func (q *Queue) markAttempt(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.records {
		if q.records[i].ID == id {
			q.records[i].Attempts++
			return q.records[i].Attempts
		}
	}
	return 0
}

func (q *Queue) remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.records[:0]
	for _, r := range q.records {
		if r.ID != id {
			out = append(out, r)
		}
	}
	q.records = out
}

func (q *Queue) load(ctx context.Context) error {
	data, ok, err := q.kv.Get(ctx, q.key)
	if err != nil {
		return fmt.Errorf("load pending queue: %w", err)
	}
	if !ok || len(data) == 0 {
		return nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("decode pending queue: %w", err)
	}
	q.records = records
	if len(records) > 0 {
		q.log.Info().Int("size", len(records)).Msg("reloaded pending queue")
	}
	return nil
}

func (q *Queue) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(q.records)
	if err != nil {
		return err
	}
	return q.kv.Set(ctx, q.key, data)
}

func newUUID() string { return uuid.NewString() }
