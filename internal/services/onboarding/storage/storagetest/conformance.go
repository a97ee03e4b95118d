// Package storagetest checks Store implementations against the shared
// contract so every driver behaves the same for the wizard.
package storagetest

import (
	"context"
	"testing"

	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage"
)

// RunStoreConformance exercises open() against the Store contract:
//
//   - missing keys report ok=false without error
//   - Set overwrites (last write wins)
//   - sessions are isolated from each other
//   - Remove deletes only the named keys and tolerates unknown ones
//   - a cancelled context is rejected
func RunStoreConformance(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		store := open(t)
		_, ok, err := store.Get(ctx, "s1", storage.KeyUserData)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if ok {
			t.Fatal("expected missing key")
		}
	})

	t.Run("last write wins", func(t *testing.T) {
		store := open(t)
		mustSet(t, store, "s1", storage.KeyCurrentStep, `1`)
		mustSet(t, store, "s1", storage.KeyCurrentStep, `3`)
		if got := mustGet(t, store, "s1", storage.KeyCurrentStep); got != `3` {
			t.Fatalf("value = %s, want 3", got)
		}
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		store := open(t)
		mustSet(t, store, "s1", storage.KeyTrial, `true`)
		if _, ok, err := store.Get(ctx, "s2", storage.KeyTrial); err != nil || ok {
			t.Fatalf("Get other session = ok %v err %v, want missing", ok, err)
		}
	})

	t.Run("remove named keys", func(t *testing.T) {
		store := open(t)
		mustSet(t, store, "s1", storage.KeySelectedCourses, `["STRESS"]`)
		mustSet(t, store, "s1", storage.KeyUserID, `"u1"`)
		if err := store.Remove(ctx, "s1", storage.KeySelectedCourses, "never-written"); err != nil {
			t.Fatalf("Remove: %v", err)
		}
		if _, ok, _ := store.Get(ctx, "s1", storage.KeySelectedCourses); ok {
			t.Fatal("expected removed key to be gone")
		}
		if got := mustGet(t, store, "s1", storage.KeyUserID); got != `"u1"` {
			t.Fatalf("untouched key = %s", got)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		store := open(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		if err := store.Set(cancelled, "s1", storage.KeyTrial, []byte(`true`)); err == nil {
			t.Fatal("expected cancelled context error")
		}
	})
}

func mustSet(t *testing.T, store storage.Store, sessionID, key, value string) {
	t.Helper()
	if err := store.Set(context.Background(), sessionID, key, []byte(value)); err != nil {
		t.Fatalf("Set %s: %v", key, err)
	}
}

func mustGet(t *testing.T, store storage.Store, sessionID, key string) string {
	t.Helper()
	raw, ok, err := store.Get(context.Background(), sessionID, key)
	if err != nil || !ok {
		t.Fatalf("Get %s = ok %v err %v", key, ok, err)
	}
	return string(raw)
}
