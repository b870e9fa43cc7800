package triprepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/fernweh-app/journal-core/internal/adapters/postgres"
	"github.com/fernweh-app/journal-core/internal/domain"
	"github.com/fernweh-app/journal-core/internal/ports/out/triprepo"
)

// Repo is a Postgres implementation of triprepo.Repository. Exclusive
// activation runs in one transaction so the single-active-trip invariant
// holds at every commit point; a partial unique index backs it up.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Create(ctx context.Context, t triprepo.Trip) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	tripUUID, err := uuid.Parse(string(t.ID))
	if err != nil {
		return fmt.Errorf("invalid trip id: %w", err)
	}
	ownerUUID, err := uuid.Parse(string(t.OwnerID))
	if err != nil {
		return fmt.Errorf("invalid owner id: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO trips (
				id, title, description, start_date, end_date,
				is_active, owner_id, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			tripUUID,
			t.Title,
			t.Description,
			t.StartDate.UTC(),
			timePtrUTC(t.EndDate),
			t.IsActive,
			ownerUUID,
			t.CreatedAt.UTC(),
			t.UpdatedAt.UTC(),
		)
		if err != nil {
			if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode {
				return triprepo.ErrAlreadyExists
			}
			return err
		}
		return syncParticipants(ctx, tx, tripUUID, t.ParticipantIDs)
	})
}

func (r *Repo) Save(ctx context.Context, t triprepo.Trip) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	tripUUID, err := uuid.Parse(string(t.ID))
	if err != nil {
		return fmt.Errorf("invalid trip id: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := liveness(ctx, tx, tripUUID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE trips
			SET title = $2,
			    description = $3,
			    start_date = $4,
			    end_date = $5,
			    is_active = $6,
			    updated_at = $7
			WHERE id = $1 AND deleted_at IS NULL
		`,
			tripUUID,
			t.Title,
			t.Description,
			t.StartDate.UTC(),
			timePtrUTC(t.EndDate),
			t.IsActive,
			t.UpdatedAt.UTC(),
		)
		if err != nil {
			return err
		}
		return syncParticipants(ctx, tx, tripUUID, t.ParticipantIDs)
	})
}

func (r *Repo) GetByID(ctx context.Context, id domain.TripID) (triprepo.Trip, error) {
	if r.pool == nil {
		return triprepo.Trip{}, errors.New("nil postgres pool")
	}
	tripUUID, err := uuid.Parse(string(id))
	if err != nil {
		return triprepo.Trip{}, triprepo.ErrNotFound
	}

	row := r.pool.QueryRow(ctx, tripSelect+` WHERE tr.id = $1`, tripUUID)
	t, deleted, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return triprepo.Trip{}, triprepo.ErrNotFound
		}
		return triprepo.Trip{}, err
	}
	if deleted {
		return triprepo.Trip{}, triprepo.ErrDeleted
	}

	t.ParticipantIDs, err = loadParticipants(ctx, r.pool, tripUUID)
	if err != nil {
		return triprepo.Trip{}, err
	}
	return t, nil
}

func (r *Repo) ListByOwner(ctx context.Context, owner domain.UserID) ([]triprepo.Trip, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	ownerUUID, err := uuid.Parse(string(owner))
	if err != nil {
		return []triprepo.Trip{}, nil
	}

	rows, err := r.pool.Query(ctx, tripSelect+`
		WHERE tr.owner_id = $1 AND tr.deleted_at IS NULL
		ORDER BY tr.is_active DESC, tr.start_date DESC, tr.id
	`, ownerUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]triprepo.Trip, 0)
	for rows.Next() {
		t, _, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		tid, _ := uuid.Parse(string(out[i].ID))
		out[i].ParticipantIDs, err = loadParticipants(ctx, r.pool, tid)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repo) ActivateExclusive(ctx context.Context, owner domain.UserID, id domain.TripID) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	tripUUID, err := uuid.Parse(string(id))
	if err != nil {
		return triprepo.ErrNotFound
	}
	ownerUUID, err := uuid.Parse(string(owner))
	if err != nil {
		return triprepo.ErrNotFound
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			rowOwner uuid.UUID
			deleted  bool
		)
		err := tx.QueryRow(ctx, `
			SELECT owner_id, deleted_at IS NOT NULL
			FROM trips WHERE id = $1 FOR UPDATE
		`, tripUUID).Scan(&rowOwner, &deleted)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return triprepo.ErrNotFound
			}
			return err
		}
		if deleted {
			return triprepo.ErrDeleted
		}
		if rowOwner != ownerUUID {
			return triprepo.ErrNotFound
		}

		// Deactivate first so the partial unique index never sees two active
		// rows inside the transaction.
		if _, err := tx.Exec(ctx, `
			UPDATE trips SET is_active = false
			WHERE owner_id = $1 AND deleted_at IS NULL AND id <> $2 AND is_active
		`, ownerUUID, tripUUID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE trips SET is_active = true WHERE id = $1
		`, tripUUID)
		return err
	})
}

func (r *Repo) Delete(ctx context.Context, id domain.TripID) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	tripUUID, err := uuid.Parse(string(id))
	if err != nil {
		return triprepo.ErrNotFound
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := liveness(ctx, tx, tripUUID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE trips SET deleted_at = now(), is_active = false WHERE id = $1
		`, tripUUID)
		return err
	})
}

const tripSelect = `
	SELECT
		tr.id,
		tr.title,
		tr.description,
		tr.start_date,
		tr.end_date,
		tr.is_active,
		tr.owner_id,
		tr.deleted_at IS NOT NULL,
		tr.created_at,
		tr.updated_at
	FROM trips tr`

func liveness(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var deleted bool
	err := tx.QueryRow(ctx, `
		SELECT deleted_at IS NOT NULL FROM trips WHERE id = $1 FOR UPDATE
	`, id).Scan(&deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return triprepo.ErrNotFound
		}
		return err
	}
	if deleted {
		return triprepo.ErrDeleted
	}
	return nil
}

func scanTrip(row pgx.Row) (triprepo.Trip, bool, error) {
	var (
		id      uuid.UUID
		owner   uuid.UUID
		endDate *time.Time
		t       triprepo.Trip
		deleted bool
	)
	err := row.Scan(
		&id,
		&t.Title,
		&t.Description,
		&t.StartDate,
		&endDate,
		&t.IsActive,
		&owner,
		&deleted,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return triprepo.Trip{}, false, err
	}
	t.ID = domain.TripID(id.String())
	t.OwnerID = domain.UserID(owner.String())
	t.EndDate = endDate
	return t, deleted, nil
}

func loadParticipants(ctx context.Context, pool *pgxpool.Pool, trip uuid.UUID) ([]domain.UserID, error) {
	rows, err := pool.Query(ctx, `
		SELECT user_id FROM trip_participants WHERE trip_id = $1 ORDER BY user_id
	`, trip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UserID
	for rows.Next() {
		var uid uuid.UUID
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, domain.UserID(uid.String()))
	}
	return out, rows.Err()
}

func syncParticipants(ctx context.Context, tx pgx.Tx, trip uuid.UUID, ids []domain.UserID) error {
	if _, err := tx.Exec(ctx, `DELETE FROM trip_participants WHERE trip_id = $1`, trip); err != nil {
		return err
	}
	for _, id := range ids {
		uid, err := uuid.Parse(string(id))
		if err != nil {
			return fmt.Errorf("invalid participant id: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO trip_participants (trip_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, trip, uid); err != nil {
			return err
		}
	}
	return nil
}

func timePtrUTC(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := p.UTC()
	return &v
}
