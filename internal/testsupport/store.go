package testsupport

import (
	"context"
	"testing"

	"parcel/internal/config"
	"parcel/internal/jobs"
)

// MustOpenStore opens the job store cfg selects and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) jobs.Store {
	t.Helper()

	if cfg.Store.Backend == config.StoreBackendMemory {
		return jobs.NewMemoryStore()
	}
	store, err := jobs.OpenSQLite(context.Background(), cfg.StorePath())
	if err != nil {
		t.Fatalf("open job store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
