package memoryrepo

import (
	"testing"

	"github.com/fernweh-app/journal-core/internal/adapters/contracttest"
	"github.com/fernweh-app/journal-core/internal/adapters/postgres/testutil"
	memoryrepoport "github.com/fernweh-app/journal-core/internal/ports/out/memoryrepo"
)

func TestContract_PostgresMemoryRepo(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)

	contracttest.RunMemoryRepo(t, func(t *testing.T) (memoryrepoport.Repository, func()) {
		t.Helper()
		return NewRepo(pool), nil
	})
}
