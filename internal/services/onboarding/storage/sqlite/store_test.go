package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage/storagetest"
)

func TestStoreConformance(t *testing.T) {
	storagetest.RunStoreConformance(t, func(t *testing.T) storage.Store { return openTempStore(t) })
}

func TestValuesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "onboarding.db")
	ctx := context.Background()

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Set(ctx, "s1", storage.KeyCurrentStep, []byte(`4`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	raw, ok, err := reopened.Get(ctx, "s1", storage.KeyCurrentStep)
	if err != nil || !ok || string(raw) != "4" {
		t.Fatalf("get after reopen = %q, %v, %v", raw, ok, err)
	}
}

func TestPurgeIdleRemovesStaleSessions(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	store.now = func() time.Time { return base }
	if err := store.Set(ctx, "stale", storage.KeyTrial, []byte(`true`)); err != nil {
		t.Fatalf("set stale: %v", err)
	}
	store.now = func() time.Time { return base.Add(2 * time.Hour) }
	if err := store.Set(ctx, "fresh", storage.KeyTrial, []byte(`true`)); err != nil {
		t.Fatalf("set fresh: %v", err)
	}

	removed, err := store.PurgeIdle(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("purge idle: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok, _ := store.Get(ctx, "fresh", storage.KeyTrial); !ok {
		t.Fatal("fresh session should survive")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "onboarding.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}
