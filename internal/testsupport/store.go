package testsupport

import (
	"context"
	"testing"

	"shotdiff/internal/assets"
	"shotdiff/internal/config"
	"shotdiff/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// MustOpenAssets opens the asset store configured by cfg.
func MustOpenAssets(t testing.TB, cfg *config.Config) *assets.Store {
	t.Helper()

	as, err := assets.New(cfg.Paths.AssetDir, cfg.Assets.PublicBaseURL)
	if err != nil {
		t.Fatalf("assets.New: %v", err)
	}
	return as
}

// MustStoreAsset copies a local file into the asset store and returns its key.
func MustStoreAsset(t testing.TB, as *assets.Store, path string) string {
	t.Helper()

	key, err := as.Store(context.Background(), path)
	if err != nil {
		t.Fatalf("assets.Store(%s): %v", path, err)
	}
	return key
}

// MustSubmit records a submission and returns the build.
func MustSubmit(t testing.TB, st *store.Store, sub store.Submission) *store.Build {
	t.Helper()

	build, err := st.SubmitBatch(context.Background(), sub)
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	return build
}
