package userrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/fernweh-app/journal-core/internal/adapters/postgres"
	"github.com/fernweh-app/journal-core/internal/domain"
	"github.com/fernweh-app/journal-core/internal/ports/out/userrepo"
)

// Repo is a Postgres implementation of userrepo.Repository. Deletion sets
// deleted_at; a tombstoned row reads as ErrDeleted, never ErrNotFound.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Create(ctx context.Context, u userrepo.User) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(u.ID))
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO users (id, display_name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		id,
		u.DisplayName,
		u.IsActive,
		u.CreatedAt.UTC(),
		u.UpdatedAt.UTC(),
	)
	if err != nil {
		if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode {
			return userrepo.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *Repo) Save(ctx context.Context, u userrepo.User) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(u.ID))
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := liveness(ctx, tx, id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE users
			SET display_name = $2,
			    is_active = $3,
			    updated_at = $4
			WHERE id = $1 AND deleted_at IS NULL
		`,
			id,
			u.DisplayName,
			u.IsActive,
			u.UpdatedAt.UTC(),
		)
		return err
	})
}

func (r *Repo) GetByID(ctx context.Context, id domain.UserID) (userrepo.User, error) {
	if r.pool == nil {
		return userrepo.User{}, errors.New("nil postgres pool")
	}
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return userrepo.User{}, userrepo.ErrNotFound
	}

	row := r.pool.QueryRow(ctx, `
		SELECT id, display_name, is_active, deleted_at IS NOT NULL, created_at, updated_at
		FROM users
		WHERE id = $1
	`, uid)

	u, deleted, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return userrepo.User{}, userrepo.ErrNotFound
		}
		return userrepo.User{}, err
	}
	if deleted {
		return userrepo.User{}, userrepo.ErrDeleted
	}
	return u, nil
}

func (r *Repo) List(ctx context.Context) ([]userrepo.User, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, display_name, is_active, deleted_at IS NOT NULL, created_at, updated_at
		FROM users
		WHERE deleted_at IS NULL
		ORDER BY display_name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]userrepo.User, 0)
	for rows.Next() {
		u, _, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repo) Delete(ctx context.Context, id domain.UserID) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return userrepo.ErrNotFound
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := liveness(ctx, tx, uid); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE users SET deleted_at = now() WHERE id = $1
		`, uid)
		return err
	})
}

// liveness maps the row state to the port sentinels before a mutation.
func liveness(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var deleted bool
	err := tx.QueryRow(ctx, `
		SELECT deleted_at IS NOT NULL FROM users WHERE id = $1 FOR UPDATE
	`, id).Scan(&deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return userrepo.ErrNotFound
		}
		return err
	}
	if deleted {
		return userrepo.ErrDeleted
	}
	return nil
}

func scanUser(row pgx.Row) (userrepo.User, bool, error) {
	var (
		id      uuid.UUID
		u       userrepo.User
		deleted bool
	)
	if err := row.Scan(&id, &u.DisplayName, &u.IsActive, &deleted, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return userrepo.User{}, false, err
	}
	u.ID = domain.UserID(id.String())
	return u, deleted, nil
}
