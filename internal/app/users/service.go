// Package users manages journal user profiles. Deactivation keeps the
// record resolvable; deletion leaves a tombstone so references held by the
// tracking session or the pending queue reconcile as deleted, not missing.
package users

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/fernweh-app/journal-core/internal/domain"
	clockport "github.com/fernweh-app/journal-core/internal/ports/out/clock"
	"github.com/fernweh-app/journal-core/internal/ports/out/userrepo"
)

// Error is an application-layer error that can be mapped to an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

type CreateUserInput struct {
	DisplayName string
}

type Service struct {
	repo userrepo.Repository
	clk  clockport.Clock

	newUserID func() domain.UserID
}

func NewService(repo userrepo.Repository, clk clockport.Clock) *Service {
	return &Service{
		repo: repo,
		clk:  clk,
		newUserID: func() domain.UserID {
			return domain.UserID(uuid.NewString())
		},
	}
}

// SetNewUserIDForTest overrides user ID generation for deterministic tests.
// It should not be used in production code.
func (s *Service) SetNewUserIDForTest(fn func() domain.UserID) {
	if fn != nil {
		s.newUserID = fn
	}
}

func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (domain.User, error) {
	displayName := domain.NormalizeTitle(in.DisplayName)
	if displayName == "" {
		return domain.User{}, &Error{Status: 422, Code: "VALIDATION_ERROR", Message: "invalid displayName", Details: map[string]any{"displayName": "must be non-empty"}}
	}

	now := s.clk.Now()
	u := userrepo.User{
		ID:          s.newUserID(),
		DisplayName: displayName,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrAlreadyExists) {
			return domain.User{}, &Error{Status: 409, Code: "USER_ID_CONFLICT", Message: "user id conflict"}
		}
		return domain.User{}, err
	}
	return toDomain(u), nil
}

func (s *Service) GetUser(ctx context.Context, id domain.UserID) (domain.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) || errors.Is(err, userrepo.ErrDeleted) {
			return domain.User{}, &Error{Status: 404, Code: "USER_NOT_FOUND", Message: "user not found"}
		}
		return domain.User{}, err
	}
	return toDomain(u), nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	us, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(us))
	for _, u := range us {
		out = append(out, toDomain(u))
	}
	return out, nil
}

// RenameUser updates the display name, normalized the same way titles are.
func (s *Service) RenameUser(ctx context.Context, id domain.UserID, displayName string) (domain.User, error) {
	name := domain.NormalizeTitle(displayName)
	if name == "" {
		return domain.User{}, &Error{Status: 422, Code: "VALIDATION_ERROR", Message: "invalid displayName", Details: map[string]any{"displayName": "must be non-empty"}}
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) || errors.Is(err, userrepo.ErrDeleted) {
			return domain.User{}, &Error{Status: 404, Code: "USER_NOT_FOUND", Message: "user not found"}
		}
		return domain.User{}, err
	}
	u.DisplayName = name
	u.UpdatedAt = s.clk.Now()
	if err := s.repo.Save(ctx, u); err != nil {
		return domain.User{}, err
	}
	return toDomain(u), nil
}

// DeactivateUser flips the active flag off. The record stays resolvable, so
// existing trips and memories keep a live author reference.
func (s *Service) DeactivateUser(ctx context.Context, id domain.UserID) (domain.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) || errors.Is(err, userrepo.ErrDeleted) {
			return domain.User{}, &Error{Status: 404, Code: "USER_NOT_FOUND", Message: "user not found"}
		}
		return domain.User{}, err
	}
	if !u.IsActive {
		return toDomain(u), nil
	}
	u.IsActive = false
	u.UpdatedAt = s.clk.Now()
	if err := s.repo.Save(ctx, u); err != nil {
		return domain.User{}, err
	}
	return toDomain(u), nil
}

// DeleteUser tombstones the user.
func (s *Service) DeleteUser(ctx context.Context, id domain.UserID) error {
	err := s.repo.Delete(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, userrepo.ErrDeleted):
		// Idempotent.
		return nil
	case errors.Is(err, userrepo.ErrNotFound):
		return &Error{Status: 404, Code: "USER_NOT_FOUND", Message: "user not found"}
	default:
		return err
	}
}

func toDomain(u userrepo.User) domain.User {
	return domain.User{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
