package triprepo

import (
	"testing"

	"github.com/fernweh-app/journal-core/internal/adapters/contracttest"
	triprepoport "github.com/fernweh-app/journal-core/internal/ports/out/triprepo"
)

func TestContract_TripRepo(t *testing.T) {
	contracttest.RunTripRepo(t, func(t *testing.T) (triprepoport.Repository, func()) {
		t.Helper()
		return NewRepo(), nil
	})
}
