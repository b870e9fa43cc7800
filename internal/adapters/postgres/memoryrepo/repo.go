package memoryrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/fernweh-app/journal-core/internal/adapters/postgres"
	"github.com/fernweh-app/journal-core/internal/domain"
	"github.com/fernweh-app/journal-core/internal/ports/out/memoryrepo"
)

// Repo is a Postgres implementation of memoryrepo.Repository.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Create(ctx context.Context, m memoryrepo.Memory) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(m.ID))
	if err != nil {
		return fmt.Errorf("invalid memory id: %w", err)
	}
	tripUUID, err := uuid.Parse(string(m.TripID))
	if err != nil {
		return fmt.Errorf("invalid trip id: %w", err)
	}
	authorUUID, err := uuid.Parse(string(m.Author))
	if err != nil {
		return fmt.Errorf("invalid author id: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO memories (
				id, trip_id, author_id, title, content,
				latitude, longitude, ts, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			id,
			tripUUID,
			authorUUID,
			m.Title,
			m.Content,
			m.Latitude,
			m.Longitude,
			m.Timestamp.UTC(),
			m.CreatedAt.UTC(),
		)
		if err != nil {
			if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode {
				return memoryrepo.ErrAlreadyExists
			}
			return err
		}
		for _, p := range m.Photos {
			if err := insertPhoto(ctx, tx, id, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repo) GetByID(ctx context.Context, id domain.MemoryID) (memoryrepo.Memory, error) {
	if r.pool == nil {
		return memoryrepo.Memory{}, errors.New("nil postgres pool")
	}
	mid, err := uuid.Parse(string(id))
	if err != nil {
		return memoryrepo.Memory{}, memoryrepo.ErrNotFound
	}

	row := r.pool.QueryRow(ctx, memorySelect+` WHERE m.id = $1`, mid)
	m, err := scanMemory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return memoryrepo.Memory{}, memoryrepo.ErrNotFound
		}
		return memoryrepo.Memory{}, err
	}
	m.Photos, err = loadPhotos(ctx, r.pool, mid)
	if err != nil {
		return memoryrepo.Memory{}, err
	}
	return m, nil
}

func (r *Repo) ListByTrip(ctx context.Context, trip domain.TripID) ([]memoryrepo.Memory, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	tripUUID, err := uuid.Parse(string(trip))
	if err != nil {
		return []memoryrepo.Memory{}, nil
	}

	rows, err := r.pool.Query(ctx, memorySelect+`
		WHERE m.trip_id = $1
		ORDER BY m.ts, m.id
	`, tripUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]memoryrepo.Memory, 0)
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		mid, _ := uuid.Parse(string(out[i].ID))
		out[i].Photos, err = loadPhotos(ctx, r.pool, mid)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repo) AttachPhoto(ctx context.Context, id domain.MemoryID, p memoryrepo.Photo) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	mid, err := uuid.Parse(string(id))
	if err != nil {
		return memoryrepo.ErrNotFound
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT true FROM memories WHERE id = $1 FOR UPDATE
		`, mid).Scan(&exists); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return memoryrepo.ErrNotFound
			}
			return err
		}
		return insertPhoto(ctx, tx, mid, p)
	})
}

func (r *Repo) DeleteByTrip(ctx context.Context, trip domain.TripID) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	tripUUID, err := uuid.Parse(string(trip))
	if err != nil {
		return nil
	}
	// Photos cascade with their memories.
	_, err = r.pool.Exec(ctx, `DELETE FROM memories WHERE trip_id = $1`, tripUUID)
	return err
}

const memorySelect = `
	SELECT
		m.id,
		m.trip_id,
		m.author_id,
		m.title,
		m.content,
		m.latitude,
		m.longitude,
		m.ts,
		m.created_at
	FROM memories m`

func scanMemory(row pgx.Row) (memoryrepo.Memory, error) {
	var (
		id     uuid.UUID
		trip   uuid.UUID
		author uuid.UUID
		m      memoryrepo.Memory
	)
	err := row.Scan(
		&id,
		&trip,
		&author,
		&m.Title,
		&m.Content,
		&m.Latitude,
		&m.Longitude,
		&m.Timestamp,
		&m.CreatedAt,
	)
	if err != nil {
		return memoryrepo.Memory{}, err
	}
	m.ID = domain.MemoryID(id.String())
	m.TripID = domain.TripID(trip.String())
	m.Author = domain.UserID(author.String())
	return m, nil
}

func loadPhotos(ctx context.Context, pool *pgxpool.Pool, memory uuid.UUID) ([]memoryrepo.Photo, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, filename, local_path, remote_path
		FROM memory_photos
		WHERE memory_id = $1
		ORDER BY id
	`, memory)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memoryrepo.Photo
	for rows.Next() {
		var (
			id uuid.UUID
			p  memoryrepo.Photo
		)
		if err := rows.Scan(&id, &p.Filename, &p.LocalPath, &p.RemotePath); err != nil {
			return nil, err
		}
		p.ID = domain.PhotoID(id.String())
		out = append(out, p)
	}
	return out, rows.Err()
}

func insertPhoto(ctx context.Context, tx pgx.Tx, memory uuid.UUID, p memoryrepo.Photo) error {
	pid, err := uuid.Parse(string(p.ID))
	if err != nil {
		return fmt.Errorf("invalid photo id: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO memory_photos (id, memory_id, filename, local_path, remote_path)
		VALUES ($1, $2, $3, $4, $5)
	`, pid, memory, p.Filename, p.LocalPath, p.RemotePath)
	return err
}
