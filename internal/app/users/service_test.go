package users

import (
	"context"
	"errors"
	"testing"
	"time"

	memuserrepo "github.com/fernweh-app/journal-core/internal/adapters/memory/userrepo"
	platformclock "github.com/fernweh-app/journal-core/internal/platform/clock"
	"github.com/fernweh-app/journal-core/internal/domain"
)

func newService() (*Service, *memuserrepo.Repo) {
	repo := memuserrepo.NewRepo()
	clk := platformclock.NewManualClock(time.Unix(100, 0).UTC())
	return NewService(repo, clk), repo
}

func TestService_CreateThenGet(t *testing.T) {
	t.Parallel()

	svc, _ := newService()
	created, err := svc.CreateUser(context.Background(), CreateUserInput{DisplayName: "  Ada   Lovelace "})
	if err != nil {
		t.Fatalf("CreateUser err=%v", err)
	}
	if created.DisplayName != "Ada Lovelace" {
		t.Fatalf("displayName=%q", created.DisplayName)
	}
	if !created.IsActive {
		t.Fatalf("new users must be active")
	}

	got, err := svc.GetUser(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetUser err=%v", err)
	}
	if got.ID != created.ID || got.DisplayName != "Ada Lovelace" {
		t.Fatalf("got=%+v created=%+v", got, created)
	}
}

func TestService_CreateUser_RejectsBlankName(t *testing.T) {
	t.Parallel()

	svc, _ := newService()
	_, err := svc.CreateUser(context.Background(), CreateUserInput{DisplayName: "   "})
	ae := (*Error)(nil)
	if !errors.As(err, &ae) || ae.Status != 422 || ae.Code != "VALIDATION_ERROR" {
		t.Fatalf("err=%v, want VALIDATION_ERROR 422", err)
	}
}

func TestService_GetUser_NotFound(t *testing.T) {
	t.Parallel()

	svc, _ := newService()
	_, err := svc.GetUser(context.Background(), domain.UserID("ghost"))
	ae := (*Error)(nil)
	if !errors.As(err, &ae) || ae.Status != 404 || ae.Code != "USER_NOT_FOUND" {
		t.Fatalf("err=%v, want USER_NOT_FOUND 404", err)
	}
}

func TestService_RenameUser(t *testing.T) {
	t.Parallel()

	svc, _ := newService()
	created, err := svc.CreateUser(context.Background(), CreateUserInput{DisplayName: "Ada"})
	if err != nil {
		t.Fatalf("CreateUser err=%v", err)
	}
	renamed, err := svc.RenameUser(context.Background(), created.ID, "  Countess   Ada ")
	if err != nil {
		t.Fatalf("RenameUser err=%v", err)
	}
	if renamed.DisplayName != "Countess Ada" {
		t.Fatalf("displayName=%q", renamed.DisplayName)
	}
}

func TestService_DeactivateUser_IsIdempotent(t *testing.T) {
	t.Parallel()

	svc, _ := newService()
	created, err := svc.CreateUser(context.Background(), CreateUserInput{DisplayName: "Ada"})
	if err != nil {
		t.Fatalf("CreateUser err=%v", err)
	}

	got, err := svc.DeactivateUser(context.Background(), created.ID)
	if err != nil || got.IsActive {
		t.Fatalf("DeactivateUser=%+v err=%v", got, err)
	}
	got, err = svc.DeactivateUser(context.Background(), created.ID)
	if err != nil || got.IsActive {
		t.Fatalf("second DeactivateUser=%+v err=%v", got, err)
	}

	// Deactivated users still resolve.
	if _, err := svc.GetUser(context.Background(), created.ID); err != nil {
		t.Fatalf("GetUser after deactivate err=%v", err)
	}
}

func TestService_DeleteUser_LeavesTombstone(t *testing.T) {
	t.Parallel()

	svc, repo := newService()
	created, err := svc.CreateUser(context.Background(), CreateUserInput{DisplayName: "Ada"})
	if err != nil {
		t.Fatalf("CreateUser err=%v", err)
	}
	if err := svc.DeleteUser(context.Background(), created.ID); err != nil {
		t.Fatalf("DeleteUser err=%v", err)
	}
	// Repeat delete is idempotent.
	if err := svc.DeleteUser(context.Background(), created.ID); err != nil {
		t.Fatalf("second DeleteUser err=%v", err)
	}
	if err := svc.DeleteUser(context.Background(), domain.UserID("ghost")); err == nil {
		t.Fatalf("deleting a never-existing user must fail")
	}

	// The tombstone keeps "deleted" distinguishable from "never existed".
	_, err = repo.GetByID(context.Background(), created.ID)
	if err == nil {
		t.Fatalf("deleted user must not resolve")
	}
}
