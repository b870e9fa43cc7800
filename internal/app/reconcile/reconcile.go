// Package reconcile proves that an entity reference is still live in the
// canonical store before anyone mutates it, and bounds the retry loop around
// saves.
//
// Callers never hold live records across asynchronous boundaries; they hold
// IDs and re-resolve here immediately before mutating. A reference that no
// longer resolves is reported as stale with the reason, and stale references
// are never retried.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/fernweh-app/journal-core/internal/domain"
	"github.com/fernweh-app/journal-core/internal/ports/out/triprepo"
	"github.com/fernweh-app/journal-core/internal/ports/out/userrepo"
)

// StaleReason says why a reference no longer corresponds to a live record.
type StaleReason string

const (
	// StaleDeleted: the record existed and has been deleted.
	StaleDeleted StaleReason = "DELETED"
	// StaleNotInStore: the record cannot be resolved by identity at all.
	StaleNotInStore StaleReason = "NOT_IN_STORE"
)

// StaleError reports a failed liveness check.
type StaleError struct {
	Reason StaleReason
	Kind   string
	ID     string
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("stale %s reference %s: %s", e.Kind, e.ID, e.Reason)
}

// IsStale reports whether err (or anything it wraps) is a staleness report.
func IsStale(err error) (*StaleError, bool) {
	var se *StaleError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Trip re-resolves a trip by identity in the canonical store and returns the
// live record. Deleted and missing trips come back as *StaleError; any other
// repository failure passes through unchanged.
func Trip(ctx context.Context, repo triprepo.Repository, id domain.TripID) (triprepo.Trip, error) {
	t, err := repo.GetByID(ctx, id)
	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, triprepo.ErrDeleted):
		return triprepo.Trip{}, &StaleError{Reason: StaleDeleted, Kind: "trip", ID: string(id)}
	case errors.Is(err, triprepo.ErrNotFound):
		return triprepo.Trip{}, &StaleError{Reason: StaleNotInStore, Kind: "trip", ID: string(id)}
	default:
		return triprepo.Trip{}, err
	}
}

// User is the user-record counterpart of Trip.
func User(ctx context.Context, repo userrepo.Repository, id domain.UserID) (userrepo.User, error) {
	u, err := repo.GetByID(ctx, id)
	switch {
	case err == nil:
		return u, nil
	case errors.Is(err, userrepo.ErrDeleted):
		return userrepo.User{}, &StaleError{Reason: StaleDeleted, Kind: "user", ID: string(id)}
	case errors.Is(err, userrepo.ErrNotFound):
		return userrepo.User{}, &StaleError{Reason: StaleNotInStore, Kind: "user", ID: string(id)}
	default:
		return userrepo.User{}, err
	}
}
